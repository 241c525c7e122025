package yard

import "math"

// LaneForPoint resolves a reference point to the lane owning the pixel under
// it. The point is clamped to the frame bounds before the lookup. Points on
// background or on a component that did not survive lane filtering resolve
// to no lane (ok = false).
//
// The lookup is pure and frame-local: the same point against the same label
// map always yields the same answer. Hysteresis across frames belongs to
// the occupancy tracker, not here.
func LaneForPoint(labels []int32, width, height int, lanes []Lane, x, y float64) (Lane, bool) {
	if len(labels) == 0 || width <= 0 || height <= 0 {
		return Lane{}, false
	}

	xi := int(math.Min(math.Max(x, 0), float64(width-1)))
	yi := int(math.Min(math.Max(y, 0), float64(height-1)))

	id := labels[yi*width+xi]
	if id == 0 {
		return Lane{}, false
	}
	for _, l := range lanes {
		if l.ComponentID == id {
			return l, true
		}
	}
	return Lane{}, false
}

// ReferencePoint computes the pixel used to test which lane a detection
// occupies: the bottom-center of its bounding box, lifted by offsetPx.
func ReferencePoint(bbox [4]float64, offsetPx float64) (float64, float64) {
	return (bbox[0] + bbox[2]) / 2.0, bbox[3] - offsetPx
}
