// Package yardlog writes the durable, append-only pipeline outputs: one
// JSONL snapshot per frame, one JSONL record per occupancy event, and the
// tabular per-(frame, lane) occupancy CSV.
package yardlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/railyard-data/yardwatch/internal/yard"
)

// Standard output file names inside a log directory.
const (
	FramesFile    = "frames.jsonl"
	EventsFile    = "events.jsonl"
	OccupancyFile = "occupancy.csv"
)

var occupancyHeader = []string{"frame", "time_s", "lane", "occupied", "vehicle_track_ids"}

// Log writes frame snapshots and occupancy events to its three sinks.
// Writes are append-only and ordered by frame index; no record is ever
// rewritten.
type Log struct {
	frames *json.Encoder
	events *json.Encoder
	occ    *csv.Writer

	headerWritten bool
}

// New creates a Log over the given sinks. Any sink may be io.Discard to
// skip that output.
func New(frames, events, occupancy io.Writer) *Log {
	return &Log{
		frames: json.NewEncoder(frames),
		events: json.NewEncoder(events),
		occ:    csv.NewWriter(occupancy),
	}
}

// Open creates (or appends to) the three standard log files in dir. The
// returned close function flushes and closes all files.
func Open(dir string) (*Log, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	var files []*os.File
	openFile := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			for _, prev := range files {
				prev.Close()
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		files = append(files, f)
		return f, nil
	}

	frames, err := openFile(FramesFile)
	if err != nil {
		return nil, nil, err
	}
	events, err := openFile(EventsFile)
	if err != nil {
		return nil, nil, err
	}
	occ, err := openFile(OccupancyFile)
	if err != nil {
		return nil, nil, err
	}

	l := New(frames, events, occ)

	// Skip the CSV header when appending to an existing file.
	if info, err := occ.Stat(); err == nil && info.Size() > 0 {
		l.headerWritten = true
	}

	closeAll := func() error {
		l.occ.Flush()
		var firstErr error
		if err := l.occ.Error(); err != nil {
			firstErr = err
		}
		for _, f := range files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return l, closeAll, nil
}

// WriteFrame appends the frame's JSONL snapshot and its per-lane CSV rows,
// one row per lane slot covering every expected lane even when empty.
func (l *Log) WriteFrame(snap yard.FrameSnapshot) error {
	if err := l.frames.Encode(snap); err != nil {
		return fmt.Errorf("write frame %d snapshot: %w", snap.Frame, err)
	}

	if !l.headerWritten {
		if err := l.occ.Write(occupancyHeader); err != nil {
			return fmt.Errorf("write occupancy header: %w", err)
		}
		l.headerWritten = true
	}

	for _, lane := range sortedLanes(snap.Occupancy) {
		ids := snap.Occupancy[lane]
		occupied := "0"
		if len(ids) > 0 {
			occupied = "1"
		}
		row := []string{
			strconv.Itoa(snap.Frame),
			fmt.Sprintf("%.3f", snap.TimeS),
			lane,
			occupied,
			joinIDs(ids),
		}
		if err := l.occ.Write(row); err != nil {
			return fmt.Errorf("write occupancy row: %w", err)
		}
	}
	l.occ.Flush()
	return l.occ.Error()
}

// WriteEvents appends one JSONL record per occupancy event.
func (l *Log) WriteEvents(events []yard.OccupancyEvent) error {
	for _, ev := range events {
		if err := l.events.Encode(ev); err != nil {
			return fmt.Errorf("write %s event for track %d: %w", ev.Kind, ev.TrackID, err)
		}
	}
	return nil
}

// sortedLanes orders lane labels numerically for rank labels (lane2 before
// lane10) and lexically otherwise, so CSV row order is stable.
func sortedLanes(occ map[string][]int64) []string {
	lanes := make([]string, 0, len(occ))
	for lane := range occ {
		lanes = append(lanes, lane)
	}
	sort.Slice(lanes, func(i, j int) bool {
		a, aok := rankOf(lanes[i])
		b, bok := rankOf(lanes[j])
		if aok && bok {
			return a < b
		}
		return lanes[i] < lanes[j]
	})
	return lanes
}

func rankOf(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, "lane")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}

// ReadEvents decodes an events JSONL stream. Used by offline analytics.
func ReadEvents(r io.Reader) ([]yard.OccupancyEvent, error) {
	dec := json.NewDecoder(r)
	var events []yard.OccupancyEvent
	for {
		var ev yard.OccupancyEvent
		if err := dec.Decode(&ev); err == io.EOF {
			return events, nil
		} else if err != nil {
			return events, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}
