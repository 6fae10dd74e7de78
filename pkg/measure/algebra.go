package measure

import (
	"math"

	"partitionk/internal/models"
)

// Intersect returns the pixelwise AND of two masks.
func Intersect(a, b *models.Mask) *models.Mask {
	out := models.NewMask(a.Width, a.Height)
	for i := range out.Bits {
		out.Bits[i] = a.Bits[i] && b.Bits[i]
	}
	return out
}

// Union returns the pixelwise OR of two masks.
func Union(a, b *models.Mask) *models.Mask {
	out := models.NewMask(a.Width, a.Height)
	for i := range out.Bits {
		out.Bits[i] = a.Bits[i] || b.Bits[i]
	}
	return out
}

// Subtract returns a with the foreground of b cleared.
func Subtract(a, b *models.Mask) *models.Mask {
	out := models.NewMask(a.Width, a.Height)
	for i := range out.Bits {
		out.Bits[i] = a.Bits[i] && !b.Bits[i]
	}
	return out
}

// Invert returns the complement of the mask.
func Invert(m *models.Mask) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	for i := range out.Bits {
		out.Bits[i] = !m.Bits[i]
	}
	return out
}

// Overlap holds the QC overlap metrics between the two species' dense
// masks. These describe colocalization quality only; they never feed into K.
type Overlap struct {
	// Intersection is the AND of the two masks
	Intersection *models.Mask

	// AreaIntersection and AreaUnion are the respective pixel counts
	AreaIntersection int
	AreaUnion        int

	// IoU is intersection over union, NaN when the union is empty
	IoU float64
}

// ComputeOverlap builds the intersection/union QC metrics for two masks.
func ComputeOverlap(a, b *models.Mask) Overlap {
	inter := Intersect(a, b)
	union := Union(a, b)
	o := Overlap{
		Intersection:     inter,
		AreaIntersection: inter.Area(),
		AreaUnion:        union.Area(),
	}
	if o.AreaUnion > 0 {
		o.IoU = float64(o.AreaIntersection) / float64(o.AreaUnion)
	} else {
		o.IoU = math.NaN()
	}
	return o
}
