package segmentation

import (
	"sort"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

// UnifyOptions selects and sizes the unification policy.
type UnifyOptions struct {
	Policy           string
	DilateIterations int
	MinParticlePx    int
	ExcludeEdges     bool
}

// Unify collapses a possibly fragmented mask into one canonical dense
// region. Largest-particle, Convex-hull and Bounding-box guarantee a single
// connected foreground (or an empty mask when nothing qualifies); the policy
// is recorded in the output row since it materially changes areas and IoU.
func Unify(m *models.Mask, opts UnifyOptions) *models.Mask {
	switch opts.Policy {
	case config.UnifyDilateMerge:
		// A closing sized to bridge gaps up to about twice the iteration
		// count without materially growing isolated fragments
		return ErodeN(DilateN(m, opts.DilateIterations), opts.DilateIterations)
	case config.UnifyLargest:
		return largestParticle(m, opts)
	case config.UnifyConvexHull:
		return convexHullMask(m, opts)
	case config.UnifyBoundingBox:
		return boundingBoxMask(m)
	default: // config.UnifyNone
		return m.Clone()
	}
}

// qualifyingComponents filters components by minimum size and the
// edge-exclusion flag.
func qualifyingComponents(m *models.Mask, opts UnifyOptions) []*Component {
	var keep []*Component
	for _, c := range Components(m) {
		if c.Area() < opts.MinParticlePx {
			continue
		}
		if opts.ExcludeEdges && c.TouchesEdge {
			continue
		}
		keep = append(keep, c)
	}
	return keep
}

// largestParticle keeps only the qualifying component with maximum area.
func largestParticle(m *models.Mask, opts UnifyOptions) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	var best *Component
	for _, c := range qualifyingComponents(m, opts) {
		if best == nil || c.Area() > best.Area() {
			best = c
		}
	}
	if best != nil {
		for _, idx := range best.Pixels {
			out.Bits[idx] = true
		}
	}
	return out
}

// convexHullMask fills the convex hull of the union of all qualifying
// components, always yielding a single simply-connected region.
func convexHullMask(m *models.Mask, opts UnifyOptions) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	var pts [][2]int
	for _, c := range qualifyingComponents(m, opts) {
		for _, idx := range c.Pixels {
			pts = append(pts, [2]int{idx % m.Width, idx / m.Width})
		}
	}
	if len(pts) == 0 {
		return out
	}

	hull := convexHull(pts)
	if len(hull) < 3 {
		// Degenerate hull (single pixel or collinear set): the hull of
		// the points is the points themselves
		for _, p := range pts {
			out.Set(p[0], p[1], true)
		}
		return out
	}

	fillConvexPolygon(out, hull)
	return out
}

// boundingBoxMask replaces the foreground with the minimal axis-aligned
// rectangle enclosing all foreground pixels.
func boundingBoxMask(m *models.Mask) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	minX, minY, maxX, maxY := m.Width, m.Height, -1, -1
	for i, fg := range m.Bits {
		if !fg {
			continue
		}
		x, y := i%m.Width, i/m.Width
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	if maxX < 0 {
		return out
	}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			out.Set(x, y, true)
		}
	}
	return out
}

// convexHull computes the convex hull of a point set with Andrew's monotone
// chain, returned in counter-clockwise order without the repeated endpoint.
func convexHull(pts [][2]int) [][2]int {
	if len(pts) < 3 {
		return pts
	}

	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	var lower, upper [][2]int
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// cross is the z component of (b-a) x (c-a); positive for a left turn.
func cross(a, b, c [2]int) int {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// fillConvexPolygon sets every pixel inside or on the hull boundary. The
// inclusive boundary test keeps the fill stable: the hull of the filled
// region is the same polygon.
func fillConvexPolygon(m *models.Mask, hull [][2]int) {
	minX, minY, maxX, maxY := hull[0][0], hull[0][1], hull[0][0], hull[0][1]
	for _, p := range hull {
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			inside := true
			for i := range hull {
				a, b := hull[i], hull[(i+1)%len(hull)]
				if cross(a, b, [2]int{x, y}) < 0 {
					inside = false
					break
				}
			}
			if inside {
				m.Set(x, y, true)
			}
		}
	}
}
