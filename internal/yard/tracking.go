package yard

import (
	"sort"

	"github.com/railyard-data/yardwatch/internal/monitoring"
)

// Occupancy event kinds.
const (
	EventLaneChange  = "lane_change"
	EventEndOfStream = "end_of_stream"
)

// OccupancyEvent records one closed occupancy segment for a tracked vehicle:
// either the assignment changed (lane_change) or the stream ended with the
// segment still open (end_of_stream, NewLane nil). Events are immutable once
// emitted.
type OccupancyEvent struct {
	Kind    string `json:"event"`
	TrackID int64  `json:"track_id"`

	// PreviousLane/NewLane are lane labels; nil means "no lane".
	PreviousLane *string `json:"previous_lane"`
	NewLane      *string `json:"new_lane"`

	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	StartTime  float64 `json:"start_time_s"`
	EndTime    float64 `json:"end_time_s"`
	Duration   float64 `json:"duration_s"`
}

// trackState is the open occupancy segment for one track identifier.
type trackState struct {
	lane       string // current lane label, "" = no lane
	startFrame int
	startTime  float64

	// Last frame this track was observed; a closed segment ends at the last
	// frame the old assignment held, not at the frame of change.
	lastFrame int
	lastTime  float64
}

// OccupancyTracker is the per-stream occupancy state machine. It owns one
// open segment per persistent track identifier and emits an event each time
// an assignment changes. A tracker instance is bound to a single stream and
// is not safe for concurrent use; independent streams get independent
// trackers.
type OccupancyTracker struct {
	tracks map[int64]*trackState
}

// NewOccupancyTracker creates an empty tracker.
func NewOccupancyTracker() *OccupancyTracker {
	return &OccupancyTracker{tracks: make(map[int64]*trackState)}
}

// OpenTracks returns the number of track identifiers with an open segment.
func (t *OccupancyTracker) OpenTracks() int {
	return len(t.tracks)
}

// Observe advances one track by one frame. lane is the track's current lane
// label ("" when the reference point resolved to no lane). It returns the
// lane_change event closing the prior segment when the assignment changed,
// or nil otherwise.
//
// Frames must be fed in order; the tracker trusts the caller's frame index
// and timestamp monotonicity per stream.
func (t *OccupancyTracker) Observe(trackID int64, lane string, frame int, timeS float64) *OccupancyEvent {
	ts, ok := t.tracks[trackID]
	if !ok {
		// First sighting: open a segment, no event.
		t.tracks[trackID] = &trackState{
			lane:       lane,
			startFrame: frame,
			startTime:  timeS,
			lastFrame:  frame,
			lastTime:   timeS,
		}
		return nil
	}

	if lane == ts.lane {
		ts.lastFrame = frame
		ts.lastTime = timeS
		return nil
	}

	ev := closeSegment(EventLaneChange, trackID, ts, lane, ts.lastFrame, ts.lastTime)

	ts.lane = lane
	ts.startFrame = frame
	ts.startTime = timeS
	ts.lastFrame = frame
	ts.lastTime = timeS

	return &ev
}

// Close ends the stream, emitting one end_of_stream event per open segment
// with end = the stream's last frame. The tracker is drained and may not be
// reused afterwards. Events are ordered by track id so output is stable.
func (t *OccupancyTracker) Close(lastFrame int, lastTime float64) []OccupancyEvent {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var events []OccupancyEvent
	for _, id := range ids {
		ts := t.tracks[id]
		if ts.startFrame < 0 {
			// Segment with no recorded start: a data-quality gap, not fatal.
			monitoring.Logf("occupancy: track %d closed without segment start, skipping", id)
			continue
		}
		events = append(events, closeSegment(EventEndOfStream, id, ts, "", lastFrame, lastTime))
	}
	t.tracks = make(map[int64]*trackState)
	return events
}

func closeSegment(kind string, trackID int64, ts *trackState, newLane string, endFrame int, endTime float64) OccupancyEvent {
	ev := OccupancyEvent{
		Kind:       kind,
		TrackID:    trackID,
		StartFrame: ts.startFrame,
		EndFrame:   endFrame,
		StartTime:  ts.startTime,
		EndTime:    endTime,
	}
	if ts.lane != "" {
		prev := ts.lane
		ev.PreviousLane = &prev
	}
	if kind == EventLaneChange && newLane != "" {
		next := newLane
		ev.NewLane = &next
	}
	if d := ev.EndTime - ev.StartTime; d > 0 {
		ev.Duration = d
	}
	return ev
}
