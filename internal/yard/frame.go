package yard

import "fmt"

// ModelDetection is one vehicle detection as delivered by the perception
// model: a bounding box, a confidence, and an optional persistent track
// identifier (nil when the tracker could not attribute one).
type ModelDetection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"conf"`
	TrackID    *int64     `json:"track_id"`
}

// FrameInput is one frame of perception output: the binary lane mask plus
// the detections seen in that frame. This is the pipeline's only input.
type FrameInput struct {
	Frame      int              `json:"frame"`
	TimeS      float64          `json:"time_s"`
	Mask       MaskRLE          `json:"mask"`
	Detections []ModelDetection `json:"detections"`
}

// Detection is a frame-scoped detection with its lane association resolved.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"conf"`
	TrackID    *int64     `json:"track_id"`
	Point      [2]float64 `json:"reference_point"`

	// Lane is the label of the lane under the reference point, nil when the
	// point fell on background. Untracked detections still get a lane here;
	// they are only excluded from the occupancy state machine.
	Lane *string `json:"lane"`
}

// FrameSnapshot is the per-frame record written to the frame log: the full
// lane list, every detection with its assignment, and the lane→occupant map
// covering all expected lane slots even when empty.
type FrameSnapshot struct {
	Frame      int                `json:"frame"`
	TimeS      float64            `json:"time_s"`
	LaneCount  int                `json:"lane_count"`
	Lanes      []Lane             `json:"lanes"`
	Detections []Detection        `json:"detections"`
	Occupancy  map[string][]int64 `json:"occupancy"`
}

// Pipeline ties the per-frame stages together for one stream: lane
// extraction, point association, and occupancy tracking. Frames must be
// processed strictly in order; a pipeline holds the cross-frame tracker
// state and is not safe for concurrent use.
type Pipeline struct {
	cfg      *TuningConfig
	registry *Registry
	tracker  *OccupancyTracker

	lastFrame int
	lastTime  float64
	seen      bool
}

// NewPipeline creates a pipeline with the given tuning. A nil registry
// disables anchor-based lane identity and labels lanes by per-frame rank.
func NewPipeline(cfg *TuningConfig, registry *Registry) *Pipeline {
	if cfg == nil {
		cfg = EmptyTuningConfig()
	}
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		tracker:  NewOccupancyTracker(),
	}
}

// ProcessFrame runs one frame through the pipeline and returns its snapshot
// plus any occupancy events closed in that frame. An empty mask or an empty
// detection list is a valid frame, not an error.
func (p *Pipeline) ProcessFrame(in FrameInput) (FrameSnapshot, []OccupancyEvent, error) {
	mask, err := in.Mask.Decode()
	if err != nil {
		return FrameSnapshot{}, nil, fmt.Errorf("frame %d: decode mask: %w", in.Frame, err)
	}

	expected := p.cfg.GetExpectedLanes()
	lanes, labels := ExtractLanes(mask, expected, p.cfg.GetMinLaneArea())
	if p.registry != nil {
		lanes = p.registry.Resolve(lanes)
	}

	snap := FrameSnapshot{
		Frame:     in.Frame,
		TimeS:     in.TimeS,
		LaneCount: len(lanes),
		Lanes:     lanes,
		Occupancy: emptyOccupancy(lanes, expected, p.registry),
	}

	var events []OccupancyEvent
	for _, md := range in.Detections {
		px, py := ReferencePoint(md.BBox, p.cfg.GetPointOffsetPx())
		det := Detection{
			BBox:       md.BBox,
			Confidence: md.Confidence,
			TrackID:    md.TrackID,
			Point:      [2]float64{px, py},
		}

		var laneLabel string
		if lane, ok := LaneForPoint(labels, mask.Width, mask.Height, lanes, px, py); ok {
			laneLabel = lane.Label
			det.Lane = &laneLabel
		}
		snap.Detections = append(snap.Detections, det)

		// Untracked detections count toward the frame snapshot but cannot
		// carry a continuous occupancy segment.
		if md.TrackID == nil {
			continue
		}
		if laneLabel != "" {
			snap.Occupancy[laneLabel] = append(snap.Occupancy[laneLabel], *md.TrackID)
		}
		if ev := p.tracker.Observe(*md.TrackID, laneLabel, in.Frame, in.TimeS); ev != nil {
			events = append(events, *ev)
		}
	}

	p.lastFrame = in.Frame
	p.lastTime = in.TimeS
	p.seen = true

	return snap, events, nil
}

// Close ends the stream and returns the terminal end_of_stream events for
// every still-open occupancy segment.
func (p *Pipeline) Close() []OccupancyEvent {
	if !p.seen {
		return nil
	}
	return p.tracker.Close(p.lastFrame, p.lastTime)
}

// emptyOccupancy builds the lane→occupants map with one slot per expected
// lane, so tabular consumers always see every lane even when unoccupied.
// With a registry configured the slots are the calibrated lane ids;
// otherwise they are lane1..laneN rank labels.
func emptyOccupancy(lanes []Lane, expected int, registry *Registry) map[string][]int64 {
	occ := make(map[string][]int64)
	if registry != nil {
		for _, id := range registry.LaneIDs() {
			occ[id] = []int64{}
		}
	} else {
		for i := 1; i <= expected; i++ {
			occ[fmt.Sprintf("lane%d", i)] = []int64{}
		}
	}
	// Lanes beyond the expected slots (possible only with odd registry
	// layouts) still get an entry.
	for _, l := range lanes {
		if _, ok := occ[l.Label]; !ok {
			occ[l.Label] = []int64{}
		}
	}
	return occ
}
