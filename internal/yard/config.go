package yard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TuningConfig holds the pipeline tuning parameters. Fields are pointers so
// a partial JSON file only overrides what it names; the Get* accessors fall
// back to the package defaults for everything else.
type TuningConfig struct {
	ExpectedLanes *int     `json:"expected_lanes,omitempty"`
	MinLaneArea   *int     `json:"min_lane_area,omitempty"`
	PointOffsetPx *float64 `json:"point_offset_px,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset, i.e. pure
// defaults.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads tuning overrides from a JSON file.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// Validate checks that every set field is in range.
func (c *TuningConfig) Validate() error {
	if c.ExpectedLanes != nil && *c.ExpectedLanes < 1 {
		return fmt.Errorf("expected_lanes must be >= 1, got %d", *c.ExpectedLanes)
	}
	if c.MinLaneArea != nil && *c.MinLaneArea < 0 {
		return fmt.Errorf("min_lane_area must be >= 0, got %d", *c.MinLaneArea)
	}
	if c.PointOffsetPx != nil && *c.PointOffsetPx < 0 {
		return fmt.Errorf("point_offset_px must be >= 0, got %v", *c.PointOffsetPx)
	}
	return nil
}

// GetExpectedLanes returns the configured lane count or the default.
func (c *TuningConfig) GetExpectedLanes() int {
	if c != nil && c.ExpectedLanes != nil {
		return *c.ExpectedLanes
	}
	return DefaultExpectedLanes
}

// GetMinLaneArea returns the configured minimum lane area or the default.
func (c *TuningConfig) GetMinLaneArea() int {
	if c != nil && c.MinLaneArea != nil {
		return *c.MinLaneArea
	}
	return DefaultMinLaneArea
}

// GetPointOffsetPx returns the configured reference-point offset or the
// default.
func (c *TuningConfig) GetPointOffsetPx() float64 {
	if c != nil && c.PointOffsetPx != nil {
		return *c.PointOffsetPx
	}
	return DefaultPointOffsetPx
}
