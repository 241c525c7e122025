package yard

import (
	"fmt"
	"math"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LaneAnchor is one calibrated lane in the yard layout: a stable lane id
// anchored to a horizontal pixel range established once from a reference
// frame (or operator input).
type LaneAnchor struct {
	ID   string  `yaml:"id" validate:"required"`
	XMin float64 `yaml:"x_min" validate:"gte=0"`
	XMax float64 `yaml:"x_max" validate:"gtfield=XMin"`
}

// Layout is the yard calibration file: the fixed set of physical lanes in
// left-to-right order.
type Layout struct {
	Lanes []LaneAnchor `yaml:"lanes" validate:"required,min=1,dive"`
}

var layoutValidate = validator.New()

// LoadLayout reads and validates a YAML yard layout.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse layout YAML: %w", err)
	}
	if err := layoutValidate.Struct(&l); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return &l, nil
}

// Registry maps per-frame extracted lanes onto the calibrated layout, so a
// lane keeps its id even when its per-frame left-to-right rank shifts under
// segmentation noise or a neighbouring lane briefly fails to segment.
type Registry struct {
	anchors []LaneAnchor
}

// NewRegistry creates a registry over the given layout.
func NewRegistry(layout *Layout) *Registry {
	if layout == nil || len(layout.Lanes) == 0 {
		return nil
	}
	anchors := make([]LaneAnchor, len(layout.Lanes))
	copy(anchors, layout.Lanes)
	return &Registry{anchors: anchors}
}

// LaneIDs returns the calibrated lane ids in layout order.
func (r *Registry) LaneIDs() []string {
	ids := make([]string, len(r.anchors))
	for i, a := range r.anchors {
		ids[i] = a.ID
	}
	return ids
}

// Resolve relabels extracted lanes with their anchored ids. A lane whose
// centroid falls inside an anchor's x-range takes that anchor's id; one
// outside every range (components merged or split) takes the id of the
// nearest anchor by midpoint distance. Ranks and geometry are untouched.
func (r *Registry) Resolve(lanes []Lane) []Lane {
	for i := range lanes {
		lanes[i].Label = r.anchorFor(lanes[i].CentroidX)
	}
	return lanes
}

func (r *Registry) anchorFor(cx float64) string {
	best := 0
	bestDist := math.Inf(1)
	for i, a := range r.anchors {
		if cx >= a.XMin && cx <= a.XMax {
			return a.ID
		}
		mid := (a.XMin + a.XMax) / 2
		if d := math.Abs(cx - mid); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return r.anchors[best].ID
}
