package yard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func int64Ptr(v int64) *int64     { return &v }
func float64Ptr(v float64) *float64 { return &v }

// twoLaneFrame builds a FrameInput with two vertical lane stripes and the
// given detections.
func twoLaneFrame(t *testing.T, frame int, timeS float64, dets []ModelDetection) FrameInput {
	t.Helper()
	m := yardMask(t, 100, 40, [][2]int{{10, 20}, {40, 50}})
	return FrameInput{Frame: frame, TimeS: timeS, Mask: m.Encode(), Detections: dets}
}

func testTuning() *TuningConfig {
	return &TuningConfig{ExpectedLanes: intPtr(2), MinLaneArea: intPtr(50)}
}

func TestPipelineProcessFrame(t *testing.T) {
	p := NewPipeline(testTuning(), nil)

	in := twoLaneFrame(t, 0, 0, []ModelDetection{
		// Bottom-center (15, 38-2) lands in lane1.
		{BBox: [4]float64{10, 0, 20, 38}, Confidence: 0.9, TrackID: int64Ptr(3)},
		// Bottom-center on background.
		{BBox: [4]float64{25, 0, 35, 38}, Confidence: 0.8, TrackID: int64Ptr(4)},
		// Untracked detection on lane2: snapshot only, no occupancy credit.
		{BBox: [4]float64{40, 0, 50, 38}, Confidence: 0.7},
	})

	snap, events, err := p.ProcessFrame(in)
	require.NoError(t, err)
	assert.Empty(t, events, "first sightings emit no events")

	assert.Equal(t, 2, snap.LaneCount)
	require.Len(t, snap.Detections, 3)

	require.NotNil(t, snap.Detections[0].Lane)
	assert.Equal(t, "lane1", *snap.Detections[0].Lane)
	assert.Nil(t, snap.Detections[1].Lane)
	require.NotNil(t, snap.Detections[2].Lane)
	assert.Equal(t, "lane2", *snap.Detections[2].Lane)

	// The occupancy map covers both expected slots; only the tracked
	// detection on a lane counts.
	require.Len(t, snap.Occupancy, 2)
	assert.Equal(t, []int64{3}, snap.Occupancy["lane1"])
	assert.Empty(t, snap.Occupancy["lane2"])
}

func TestPipelineEmitsLaneChangeAcrossFrames(t *testing.T) {
	p := NewPipeline(testTuning(), nil)

	onLane1 := []ModelDetection{{BBox: [4]float64{10, 0, 20, 38}, Confidence: 0.9, TrackID: int64Ptr(3)}}
	onLane2 := []ModelDetection{{BBox: [4]float64{40, 0, 50, 38}, Confidence: 0.9, TrackID: int64Ptr(3)}}

	_, events, err := p.ProcessFrame(twoLaneFrame(t, 0, 0.0, onLane1))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, events, err = p.ProcessFrame(twoLaneFrame(t, 1, 0.04, onLane2))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventLaneChange, events[0].Kind)
	assert.Equal(t, "lane1", *events[0].PreviousLane)
	assert.Equal(t, "lane2", *events[0].NewLane)

	final := p.Close()
	require.Len(t, final, 1)
	assert.Equal(t, EventEndOfStream, final[0].Kind)
	assert.Equal(t, "lane2", *final[0].PreviousLane)
	assert.Equal(t, 1, final[0].EndFrame)
}

func TestPipelineEmptyFrameIsValid(t *testing.T) {
	p := NewPipeline(testTuning(), nil)

	in := FrameInput{Frame: 0, TimeS: 0, Mask: MaskRLE{Width: 100, Height: 40}}
	snap, events, err := p.ProcessFrame(in)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, snap.LaneCount)
	assert.Empty(t, snap.Detections)
	// Expected slots are still present for tabular consumers.
	assert.Len(t, snap.Occupancy, 2)
}

func TestPipelineBadMask(t *testing.T) {
	p := NewPipeline(testTuning(), nil)
	_, _, err := p.ProcessFrame(FrameInput{Mask: MaskRLE{Width: 0, Height: 0}})
	assert.Error(t, err)
}

func TestPipelineCloseWithoutFrames(t *testing.T) {
	p := NewPipeline(nil, nil)
	assert.Empty(t, p.Close())
}

func TestPipelineWithRegistryUsesAnchorIDs(t *testing.T) {
	registry := NewRegistry(&Layout{Lanes: []LaneAnchor{
		{ID: "north-1", XMin: 0, XMax: 30},
		{ID: "north-2", XMin: 30, XMax: 70},
	}})
	p := NewPipeline(testTuning(), registry)

	in := twoLaneFrame(t, 0, 0, []ModelDetection{
		{BBox: [4]float64{40, 0, 50, 38}, Confidence: 0.9, TrackID: int64Ptr(8)},
	})
	snap, _, err := p.ProcessFrame(in)
	require.NoError(t, err)

	require.NotNil(t, snap.Detections[0].Lane)
	assert.Equal(t, "north-2", *snap.Detections[0].Lane)
	assert.Equal(t, []int64{8}, snap.Occupancy["north-2"])
	assert.Contains(t, snap.Occupancy, "north-1")
}
