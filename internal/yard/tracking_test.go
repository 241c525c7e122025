package yard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard-data/yardwatch/internal/monitoring"
)

const fps = 25.0

func observeSequence(t *testing.T, tracker *OccupancyTracker, trackID int64, lanes []string) []OccupancyEvent {
	t.Helper()
	var events []OccupancyEvent
	for i, lane := range lanes {
		if ev := tracker.Observe(trackID, lane, i, float64(i)/fps); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func TestTrackerLaneSequence(t *testing.T) {
	// The canonical sequence: A A B B none C over frames 0..5.
	tracker := NewOccupancyTracker()
	events := observeSequence(t, tracker, 7, []string{"lane1", "lane1", "lane2", "lane2", "", "lane3"})

	require.Len(t, events, 3)

	// A → B, closed at the last frame A held.
	assert.Equal(t, EventLaneChange, events[0].Kind)
	assert.Equal(t, "lane1", *events[0].PreviousLane)
	assert.Equal(t, "lane2", *events[0].NewLane)
	assert.Equal(t, 0, events[0].StartFrame)
	assert.Equal(t, 1, events[0].EndFrame)

	// B → none.
	assert.Equal(t, "lane2", *events[1].PreviousLane)
	assert.Nil(t, events[1].NewLane)
	assert.Equal(t, 2, events[1].StartFrame)
	assert.Equal(t, 3, events[1].EndFrame)

	// none → C.
	assert.Nil(t, events[2].PreviousLane)
	assert.Equal(t, "lane3", *events[2].NewLane)
	assert.Equal(t, 4, events[2].StartFrame)
	assert.Equal(t, 4, events[2].EndFrame)

	// Terminal close for the open C segment.
	final := tracker.Close(5, 5/fps)
	require.Len(t, final, 1)
	assert.Equal(t, EventEndOfStream, final[0].Kind)
	assert.Equal(t, int64(7), final[0].TrackID)
	assert.Equal(t, "lane3", *final[0].PreviousLane)
	assert.Nil(t, final[0].NewLane)
	assert.Equal(t, 5, final[0].StartFrame)
	assert.Equal(t, 5, final[0].EndFrame)

	// Spans are non-overlapping, contiguous, with non-negative durations.
	all := append(events, final...)
	for i, ev := range all {
		assert.GreaterOrEqual(t, ev.Duration, 0.0)
		assert.LessOrEqual(t, ev.StartFrame, ev.EndFrame+1)
		if i > 0 {
			assert.Equal(t, all[i-1].EndFrame+1, ev.StartFrame, "segments must be contiguous")
		}
	}
}

func TestTrackerFirstObservationEmitsNothing(t *testing.T) {
	tracker := NewOccupancyTracker()
	assert.Nil(t, tracker.Observe(1, "lane4", 0, 0))
	assert.Equal(t, 1, tracker.OpenTracks())
}

func TestTrackerUnchangedAssignmentEmitsNothing(t *testing.T) {
	tracker := NewOccupancyTracker()
	for i := 0; i < 10; i++ {
		assert.Nil(t, tracker.Observe(1, "lane2", i, float64(i)/fps))
	}
	final := tracker.Close(9, 9/fps)
	require.Len(t, final, 1)
	assert.Equal(t, 0, final[0].StartFrame)
	assert.Equal(t, 9, final[0].EndFrame)
	assert.InDelta(t, 9/fps, final[0].Duration, 1e-9)
}

func TestTrackerMultipleTracksIndependent(t *testing.T) {
	tracker := NewOccupancyTracker()

	tracker.Observe(1, "lane1", 0, 0)
	tracker.Observe(2, "lane2", 0, 0)

	ev := tracker.Observe(1, "lane3", 1, 1/fps)
	require.NotNil(t, ev)
	assert.Equal(t, int64(1), ev.TrackID)

	// Track 2 is untouched by track 1's change.
	assert.Nil(t, tracker.Observe(2, "lane2", 1, 1/fps))

	final := tracker.Close(1, 1/fps)
	require.Len(t, final, 2)
	// Close output is ordered by track id.
	assert.Equal(t, int64(1), final[0].TrackID)
	assert.Equal(t, int64(2), final[1].TrackID)
}

func TestTrackerCloseDrainsState(t *testing.T) {
	tracker := NewOccupancyTracker()
	tracker.Observe(1, "lane1", 0, 0)

	require.Len(t, tracker.Close(0, 0), 1)
	assert.Equal(t, 0, tracker.OpenTracks())
	assert.Empty(t, tracker.Close(0, 0))
}

func TestTrackerCloseSkipsSegmentWithoutStart(t *testing.T) {
	defer monitoring.SetLogger(nil)
	var warnings []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, v...))
	})

	tracker := NewOccupancyTracker()
	tracker.Observe(1, "lane1", 3, 3/fps)
	// Corrupted bookkeeping: an open segment with no recorded start.
	tracker.tracks[2] = &trackState{lane: "lane5", startFrame: -1}

	final := tracker.Close(10, 10/fps)
	require.Len(t, final, 1)
	assert.Equal(t, int64(1), final[0].TrackID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "track 2")
}

func TestTrackerDurationNeverNegative(t *testing.T) {
	tracker := NewOccupancyTracker()
	// A non-monotonic upstream timestamp would make end < start; the
	// emitted duration must clamp to zero rather than go negative.
	tracker.Observe(1, "lane1", 0, 5.0)
	tracker.Observe(1, "lane1", 1, 4.0)
	ev := tracker.Observe(1, "lane2", 2, 4.5)
	require.NotNil(t, ev)
	assert.Equal(t, 5.0, ev.StartTime)
	assert.Equal(t, 4.0, ev.EndTime)
	assert.Equal(t, 0.0, ev.Duration)
}
