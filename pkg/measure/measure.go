// Package measure derives the scientific quantities of the pipeline from
// planes and masks: masked mean intensities, mask overlap QC metrics, dilute
// reference regions, optional background correction, and the partition
// coefficient itself.
package measure

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"partitionk/internal/models"
)

// MaskedMean computes the mean intensity of the plane restricted to the
// mask's foreground. It is a dot product of the plane with the 0/1 mask
// vector divided by the precomputed foreground count, so the result depends
// only on the addressable arrays, never on any transient selection that
// could pull in anti-aliased boundary pixels. Returns NaN when the mask has
// no foreground.
func MaskedMean(plane *models.Plane, mask *models.Mask) float64 {
	area := mask.Area()
	if area == 0 {
		return math.NaN()
	}
	sum := floats.Dot(plane.Data, mask.Weights())
	return sum / float64(area)
}

// SubtractBackground returns a copy of the plane with the scalar background
// subtracted from every pixel, clamped at zero. The background estimate
// comes from the region outside both dense masks; segmentation always runs
// on the uncorrected plane.
func SubtractBackground(plane *models.Plane, background float64) *models.Plane {
	out := plane.Clone()
	for i, v := range out.Data {
		v -= background
		if v < 0 {
			v = 0
		}
		out.Data[i] = v
	}
	return out
}

// PartitionCoefficient computes K = denseMean / diluteMean. K is defined
// only when the dilute mean is finite and strictly positive; otherwise it is
// NaN, never zero or infinity.
func PartitionCoefficient(denseMean, diluteMean float64) float64 {
	if math.IsNaN(denseMean) || math.IsNaN(diluteMean) || diluteMean <= 0 {
		return math.NaN()
	}
	return denseMean / diluteMean
}
