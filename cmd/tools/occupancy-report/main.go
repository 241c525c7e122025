// Command occupancy-report summarises an occupancy event log: per-lane
// dwell-time statistics as JSON on stdout and, optionally, an HTML bar
// chart.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/railyard-data/yardwatch/internal/report"
	"github.com/railyard-data/yardwatch/internal/yardlog"
)

var (
	eventsPath = flag.String("events", "outputs/events.jsonl", "Occupancy events JSONL path")
	chartPath  = flag.String("chart", "", "Optional HTML chart output path")
	title      = flag.String("title", "Yard occupancy", "Chart title")
)

func main() {
	flag.Parse()

	f, err := os.Open(*eventsPath)
	if err != nil {
		log.Fatalf("Failed to open events log: %v", err)
	}
	defer f.Close()

	events, err := yardlog.ReadEvents(f)
	if err != nil {
		log.Fatalf("Failed to read events: %v", err)
	}

	stats := report.DwellByLane(events)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		log.Fatalf("Failed to encode stats: %v", err)
	}

	if *chartPath != "" {
		out, err := os.Create(*chartPath)
		if err != nil {
			log.Fatalf("Failed to create chart file: %v", err)
		}
		defer out.Close()
		if err := report.RenderDwellChart(out, stats, *title); err != nil {
			log.Fatalf("Failed to render chart: %v", err)
		}
	}
}
