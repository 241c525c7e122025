// Command pipeline runs the offline occupancy pipeline over a perception
// model export: one JSONL record per frame carrying the RLE lane mask and
// the tracked vehicle detections. It writes the frame snapshot log, the
// occupancy event log, and the per-(frame, lane) occupancy CSV, and can
// forward transitions to a running yardwatch service.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/railyard-data/yardwatch/internal/db"
	"github.com/railyard-data/yardwatch/internal/yard"
	"github.com/railyard-data/yardwatch/internal/yardlog"
)

var (
	input    = flag.String("input", "", "Perception export JSONL path, or - for stdin (required)")
	outDir   = flag.String("out", "outputs", "Directory for frame/event/occupancy logs")
	tuning   = flag.String("tuning", "", "Optional pipeline tuning JSON")
	layout   = flag.String("layout", "", "Optional yard layout YAML for stable lane ids")
	postURL  = flag.String("post", "", "Optional yardwatch service base URL to forward transitions to")
	baseTime = flag.String("base-time", "", "Wall-clock time of stream start (RFC3339) for forwarded actions; defaults to now")
)

// maxLineBytes bounds one JSONL record; masks of large frames RLE-compress
// well below this.
const maxLineBytes = 16 * 1024 * 1024

func main() {
	flag.Parse()

	if *input == "" {
		flag.Usage()
		log.Fatal("-input is required")
	}

	cfg := yard.EmptyTuningConfig()
	if *tuning != "" {
		var err error
		if cfg, err = yard.LoadTuningConfig(*tuning); err != nil {
			log.Fatalf("Failed to load tuning: %v", err)
		}
	}

	var registry *yard.Registry
	if *layout != "" {
		l, err := yard.LoadLayout(*layout)
		if err != nil {
			log.Fatalf("Failed to load layout: %v", err)
		}
		registry = yard.NewRegistry(l)
	}

	in := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("Failed to open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	sink, closeLogs, err := yardlog.Open(*outDir)
	if err != nil {
		log.Fatalf("Failed to open output logs: %v", err)
	}
	defer func() {
		if err := closeLogs(); err != nil {
			log.Printf("Failed to close logs: %v", err)
		}
	}()

	start := time.Now()
	if *baseTime != "" {
		if start, err = time.Parse(time.RFC3339, *baseTime); err != nil {
			log.Fatalf("Invalid -base-time: %v", err)
		}
	}

	var forward *forwarder
	if *postURL != "" {
		forward = &forwarder{base: *postURL, streamStart: start}
	}

	runID := uuid.NewString()
	log.Printf("pipeline run %s: input=%s out=%s", runID, *input, *outDir)

	frames, events, err := run(in, cfg, registry, sink, forward)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	log.Printf("pipeline run %s: %d frames, %d events", runID, frames, events)
}

// run drives the pipeline over the input stream. Frames are processed
// strictly in input order; the tracker's cross-frame state depends on it.
func run(in io.Reader, cfg *yard.TuningConfig, registry *yard.Registry, sink *yardlog.Log, forward *forwarder) (frames, events int, err error) {
	pipeline := yard.NewPipeline(cfg, registry)

	scan := bufio.NewScanner(in)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scan.Scan() {
		line := bytes.TrimSpace(scan.Bytes())
		if len(line) == 0 {
			continue
		}
		var fi yard.FrameInput
		if err := json.Unmarshal(line, &fi); err != nil {
			return frames, events, fmt.Errorf("parse frame record %d: %w", frames, err)
		}

		snap, evs, err := pipeline.ProcessFrame(fi)
		if err != nil {
			return frames, events, err
		}
		if err := sink.WriteFrame(snap); err != nil {
			return frames, events, err
		}
		if err := emit(sink, forward, evs); err != nil {
			return frames, events, err
		}
		frames++
		events += len(evs)
	}
	if err := scan.Err(); err != nil {
		return frames, events, fmt.Errorf("read input: %w", err)
	}

	final := pipeline.Close()
	if err := emit(sink, forward, final); err != nil {
		return frames, events, err
	}
	events += len(final)
	return frames, events, nil
}

func emit(sink *yardlog.Log, forward *forwarder, evs []yard.OccupancyEvent) error {
	if err := sink.WriteEvents(evs); err != nil {
		return err
	}
	if forward != nil {
		for _, ev := range evs {
			if err := forward.post(ev); err != nil {
				// Forwarding is best-effort; the durable logs already hold
				// the event.
				log.Printf("forward %s event for track %d: %v", ev.Kind, ev.TrackID, err)
			}
		}
	}
	return nil
}

// forwarder turns occupancy events into domain actions on a running
// service: leaving a lane posts a departure, entering one posts an arrival.
type forwarder struct {
	base        string
	streamStart time.Time
	client      http.Client
}

func (f *forwarder) post(ev yard.OccupancyEvent) error {
	vehicle := strconv.FormatInt(ev.TrackID, 10)
	at := f.streamStart.Add(time.Duration(ev.EndTime * float64(time.Second)))

	var actions []db.Action
	if ev.PreviousLane != nil {
		actions = append(actions, db.Action{
			Timestamp: at,
			LaneID:    *ev.PreviousLane,
			VehicleID: &vehicle,
			Action:    db.ActionDeparture,
		})
	}
	if ev.NewLane != nil {
		actions = append(actions, db.Action{
			Timestamp: at,
			LaneID:    *ev.NewLane,
			VehicleID: &vehicle,
			Action:    db.ActionArrival,
		})
	}

	for _, a := range actions {
		body, err := json.Marshal(a)
		if err != nil {
			return err
		}
		resp, err := f.client.Post(f.base+"/api/event", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service returned %s", resp.Status)
		}
	}
	return nil
}
