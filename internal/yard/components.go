package yard

// componentStats accumulates per-component geometry during labeling.
type componentStats struct {
	id   int32
	area int

	// Bounding box (inclusive pixel coordinates)
	minX, minY, maxX, maxY int

	// Centroid accumulators
	sumX, sumY int64
}

func (c *componentStats) centroid() (float64, float64) {
	return float64(c.sumX) / float64(c.area), float64(c.sumY) / float64(c.area)
}

// LabelComponents performs 8-connected component labeling of the mask using
// the classic two-pass union-find algorithm. It returns a row-major label
// map (0 = background, component ids start at 1) and per-component stats.
// Component ids are assigned in raster-scan order of first encounter, which
// makes the labeling deterministic for a given mask.
func LabelComponents(m *Mask) ([]int32, []componentStats) {
	if m == nil || m.Width <= 0 || m.Height <= 0 {
		return nil, nil
	}

	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	parent := []int32{0} // parent[0] unused; labels are 1-based

	find := func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]] // path halving
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	// First pass: provisional labels, merging across the four already-seen
	// 8-connectivity neighbours (W, NW, N, NE).
	next := int32(1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !m.At(x, y) {
				continue
			}
			idx := y*w + x
			var best int32
			for _, d := range [4][2]int{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w {
					continue
				}
				if l := labels[ny*w+nx]; l != 0 {
					if best == 0 {
						best = l
					} else {
						union(best, l)
					}
				}
			}
			if best == 0 {
				best = next
				parent = append(parent, next)
				next++
			}
			labels[idx] = best
		}
	}

	// Second pass: resolve provisional labels to roots and renumber the
	// roots 1..n in raster order so ids are compact and deterministic.
	remap := make(map[int32]int32)
	var stats []componentStats
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			l := labels[idx]
			if l == 0 {
				continue
			}
			root := find(l)
			id, ok := remap[root]
			if !ok {
				id = int32(len(stats) + 1)
				remap[root] = id
				stats = append(stats, componentStats{
					id:   id,
					minX: x, minY: y, maxX: x, maxY: y,
				})
			}
			labels[idx] = id

			s := &stats[id-1]
			s.area++
			s.sumX += int64(x)
			s.sumY += int64(y)
			if x < s.minX {
				s.minX = x
			}
			if x > s.maxX {
				s.maxX = x
			}
			if y > s.maxY {
				s.maxY = y
			}
		}
	}

	return labels, stats
}
