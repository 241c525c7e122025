// Package report computes offline dwell-time analytics over the occupancy
// event log and renders them as an HTML chart.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/railyard-data/yardwatch/internal/yard"
)

// DwellStats summarises how long vehicles dwelt on one lane.
type DwellStats struct {
	Lane     string  `json:"lane"`
	Segments int     `json:"segments"`
	MeanS    float64 `json:"mean_s"`
	StdDevS  float64 `json:"stddev_s"`
	P50S     float64 `json:"p50_s"`
	P95S     float64 `json:"p95_s"`
	TotalS   float64 `json:"total_s"`
}

// DwellByLane aggregates closed occupancy segments per lane. A segment
// belongs to its previous lane (the lane being left); segments closed off
// any lane are reported under the "none" pseudo-lane.
func DwellByLane(events []yard.OccupancyEvent) []DwellStats {
	byLane := make(map[string][]float64)
	for _, ev := range events {
		lane := "none"
		if ev.PreviousLane != nil {
			lane = *ev.PreviousLane
		}
		byLane[lane] = append(byLane[lane], ev.Duration)
	}

	out := make([]DwellStats, 0, len(byLane))
	for lane, durations := range byLane {
		sort.Float64s(durations)
		s := DwellStats{
			Lane:     lane,
			Segments: len(durations),
			MeanS:    stat.Mean(durations, nil),
			P50S:     stat.Quantile(0.5, stat.Empirical, durations, nil),
			P95S:     stat.Quantile(0.95, stat.Empirical, durations, nil),
		}
		if len(durations) > 1 {
			s.StdDevS = stat.StdDev(durations, nil)
		}
		for _, d := range durations {
			s.TotalS += d
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Lane < out[j].Lane })
	return out
}

// RenderDwellChart writes an HTML bar chart of per-lane dwell statistics.
func RenderDwellChart(w io.Writer, stats []DwellStats, title string) error {
	lanes := make([]string, len(stats))
	mean := make([]opts.BarData, len(stats))
	p95 := make([]opts.BarData, len(stats))
	for i, s := range stats {
		lanes[i] = s.Lane
		mean[i] = opts.BarData{Value: s.MeanS}
		p95[i] = opts.BarData{Value: s.P95S}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "per-lane dwell time"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)
	bar.SetXAxis(lanes).
		AddSeries("mean dwell (s)", mean).
		AddSeries("p95 dwell (s)", p95)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render dwell chart: %w", err)
	}
	return nil
}
