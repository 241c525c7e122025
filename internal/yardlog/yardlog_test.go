package yardlog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard-data/yardwatch/internal/yard"
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64 { return &v }

func sampleSnapshot() yard.FrameSnapshot {
	return yard.FrameSnapshot{
		Frame:     3,
		TimeS:     0.12,
		LaneCount: 2,
		Lanes: []yard.Lane{
			{Rank: 1, Label: "lane1", BBox: [4]int{10, 0, 20, 20}, CentroidX: 14.5, Area: 200},
			{Rank: 2, Label: "lane2", BBox: [4]int{40, 0, 50, 20}, CentroidX: 44.5, Area: 200},
		},
		Detections: []yard.Detection{
			{BBox: [4]float64{10, 0, 20, 18}, Confidence: 0.9, TrackID: i64Ptr(3), Point: [2]float64{15, 16}, Lane: strPtr("lane1")},
		},
		Occupancy: map[string][]int64{
			"lane1":  {3, 11},
			"lane2":  {},
			"lane10": {},
		},
	}
}

func TestWriteFrameJSONL(t *testing.T) {
	var frames, events, occ bytes.Buffer
	l := New(&frames, &events, &occ)

	snap := sampleSnapshot()
	require.NoError(t, l.WriteFrame(snap))

	var decoded yard.FrameSnapshot
	require.NoError(t, json.Unmarshal(frames.Bytes(), &decoded))
	if diff := cmp.Diff(snap, decoded); diff != "" {
		t.Errorf("snapshot did not round-trip (-want +got):\n%s", diff)
	}
}

func TestWriteFrameCSVRows(t *testing.T) {
	var frames, events, occ bytes.Buffer
	l := New(&frames, &events, &occ)
	require.NoError(t, l.WriteFrame(sampleSnapshot()))

	records, err := csv.NewReader(&occ).ReadAll()
	require.NoError(t, err)
	// Header plus one row per lane slot, including the empty ones.
	require.Len(t, records, 4)
	assert.Equal(t, occupancyHeader, records[0])

	// Rank labels sort numerically: lane2 before lane10.
	assert.Equal(t, []string{"3", "0.120", "lane1", "1", "3;11"}, records[1])
	assert.Equal(t, []string{"3", "0.120", "lane2", "0", ""}, records[2])
	assert.Equal(t, []string{"3", "0.120", "lane10", "0", ""}, records[3])
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	var frames, events, occ bytes.Buffer
	l := New(&frames, &events, &occ)
	require.NoError(t, l.WriteFrame(sampleSnapshot()))
	require.NoError(t, l.WriteFrame(sampleSnapshot()))

	assert.Equal(t, 1, strings.Count(occ.String(), "frame,time_s"))
}

func TestWriteAndReadEvents(t *testing.T) {
	var frames, events, occ bytes.Buffer
	l := New(&frames, &events, &occ)

	in := []yard.OccupancyEvent{
		{Kind: yard.EventLaneChange, TrackID: 3, PreviousLane: strPtr("lane1"), NewLane: strPtr("lane2"), StartFrame: 0, EndFrame: 4, StartTime: 0, EndTime: 0.16, Duration: 0.16},
		{Kind: yard.EventEndOfStream, TrackID: 3, PreviousLane: strPtr("lane2"), StartFrame: 5, EndFrame: 9, StartTime: 0.2, EndTime: 0.36, Duration: 0.16},
	}
	require.NoError(t, l.WriteEvents(in))

	got, err := ReadEvents(&events)
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("events did not round-trip (-want +got):\n%s", diff)
	}
}

func TestOpenAppendsWithoutDuplicateHeader(t *testing.T) {
	dir := t.TempDir()

	l, closeLogs, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.WriteFrame(sampleSnapshot()))
	require.NoError(t, closeLogs())

	// Reopen and append a second frame: no second header, both frames kept.
	l, closeLogs, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, l.WriteFrame(sampleSnapshot()))
	require.NoError(t, closeLogs())

	occ, err := os.ReadFile(filepath.Join(dir, OccupancyFile))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(occ), "frame,time_s"))
	assert.Equal(t, 7, strings.Count(string(occ), "\n"), "header plus two frames of three lanes")

	framesData, err := os.ReadFile(filepath.Join(dir, FramesFile))
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(framesData, []byte("\n")))
}

func TestReadEventsToleratesEmptyStream(t *testing.T) {
	got, err := ReadEvents(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadEvents(io.LimitReader(strings.NewReader(`{"event":"lane_change"`), 20))
	assert.Error(t, err)
}
