// Package yard implements the geometric occupancy pipeline: lane
// extraction from a binary rail mask, point-to-lane association, and the
// per-track occupancy state machine.
package yard

import "fmt"

// Mask is a frame-sized binary occupancy mask. Pixels are stored row-major,
// one byte per pixel, nonzero meaning foreground (rail surface).
type Mask struct {
	Width  int
	Height int
	pix    []uint8
}

// NewMask creates an all-background mask of the given dimensions.
func NewMask(width, height int) *Mask {
	if width <= 0 || height <= 0 {
		return &Mask{}
	}
	return &Mask{
		Width:  width,
		Height: height,
		pix:    make([]uint8, width*height),
	}
}

// At reports whether the pixel at (x, y) is foreground. Out-of-bounds
// coordinates read as background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.pix[y*m.Width+x] != 0
}

// Set marks the pixel at (x, y) as foreground. Out-of-bounds writes are
// ignored.
func (m *Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.pix[y*m.Width+x] = 1
}

// FillRect marks the rectangle [x1,x2) x [y1,y2) as foreground. Used by the
// perception decoder for box-shaped masks and by tests to build fixtures.
func (m *Mask) FillRect(x1, y1, x2, y2 int) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			m.Set(x, y)
		}
	}
}

// MaskRLE is the wire form of a mask as produced by the perception model
// export: run-length encoded runs of foreground pixels over the flattened
// row-major frame. Runs is a flat list of (start, length) pairs.
type MaskRLE struct {
	Width  int   `json:"width"`
	Height int   `json:"height"`
	Runs   []int `json:"runs"`
}

// Decode expands the run-length encoding into a Mask.
func (r MaskRLE) Decode() (*Mask, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions %dx%d", r.Width, r.Height)
	}
	if len(r.Runs)%2 != 0 {
		return nil, fmt.Errorf("odd run list length %d", len(r.Runs))
	}
	m := NewMask(r.Width, r.Height)
	total := r.Width * r.Height
	for i := 0; i < len(r.Runs); i += 2 {
		start, length := r.Runs[i], r.Runs[i+1]
		if start < 0 || length < 0 || start+length > total {
			return nil, fmt.Errorf("run (%d,%d) outside %d-pixel frame", start, length, total)
		}
		for p := start; p < start+length; p++ {
			m.pix[p] = 1
		}
	}
	return m, nil
}

// Encode produces the run-length encoding of the mask. Inverse of Decode.
func (m *Mask) Encode() MaskRLE {
	rle := MaskRLE{Width: m.Width, Height: m.Height}
	inRun := false
	start := 0
	for i, v := range m.pix {
		if v != 0 && !inRun {
			inRun = true
			start = i
		} else if v == 0 && inRun {
			inRun = false
			rle.Runs = append(rle.Runs, start, i-start)
		}
	}
	if inRun {
		rle.Runs = append(rle.Runs, start, len(m.pix)-start)
	}
	return rle
}
