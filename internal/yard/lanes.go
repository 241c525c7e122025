package yard

import (
	"fmt"
	"sort"
)

// Default extraction parameters, matching the calibration the perception
// model was tuned against.
const (
	// DefaultExpectedLanes is the number of physical lanes in the yard view.
	DefaultExpectedLanes = 6
	// DefaultMinLaneArea is the minimum component area (pixels) kept as a lane.
	DefaultMinLaneArea = 1200
	// DefaultPointOffsetPx lifts the reference point off the box bottom edge
	// to avoid sampling ground-plane noise.
	DefaultPointOffsetPx = 2.0
)

// Lane is one extracted lane region. Lanes are frame-scoped: they are
// recomputed from the mask every frame and carry no identity beyond their
// left-to-right rank (or the registry label when a layout is configured).
type Lane struct {
	// ComponentID is the id of the region in the frame's label map.
	ComponentID int32 `json:"-"`

	// Rank is the 1-based left-to-right position among kept lanes.
	Rank  int    `json:"rank"`
	Label string `json:"label"`

	// BBox is [x1, y1, x2, y2] in pixel coordinates (x2/y2 exclusive).
	BBox      [4]int  `json:"bbox"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"-"`
	Area      int     `json:"area"`
}

// ExtractLanes turns a binary mask into the frame's ordered lane list.
//
// Components below minArea are discarded. If more than expected survive,
// only the expected largest by area are kept. The kept set is then ordered
// by ascending centroid x and ranked 1..k with labels "lane{rank}", so ranks
// are always contiguous from 1 and strictly increasing in x. Centroid ties
// break on component id to keep the ordering stable.
//
// The returned label map is the full component labeling of the mask (it
// still contains ids of filtered components); LaneForPoint resolves those
// to "no lane".
func ExtractLanes(m *Mask, expected, minArea int) ([]Lane, []int32) {
	labels, stats := LabelComponents(m)

	var lanes []Lane
	for i := range stats {
		s := &stats[i]
		if s.area < minArea {
			continue
		}
		cx, cy := s.centroid()
		lanes = append(lanes, Lane{
			ComponentID: s.id,
			BBox:        [4]int{s.minX, s.minY, s.maxX + 1, s.maxY + 1},
			CentroidX:   cx,
			CentroidY:   cy,
			Area:        s.area,
		})
	}

	if expected > 0 && len(lanes) > expected {
		sort.Slice(lanes, func(i, j int) bool {
			if lanes[i].Area != lanes[j].Area {
				return lanes[i].Area > lanes[j].Area
			}
			return lanes[i].ComponentID < lanes[j].ComponentID
		})
		lanes = lanes[:expected]
	}

	sort.Slice(lanes, func(i, j int) bool {
		if lanes[i].CentroidX != lanes[j].CentroidX {
			return lanes[i].CentroidX < lanes[j].CentroidX
		}
		return lanes[i].ComponentID < lanes[j].ComponentID
	})

	for i := range lanes {
		lanes[i].Rank = i + 1
		lanes[i].Label = fmt.Sprintf("lane%d", i+1)
	}

	return lanes, labels
}
