// Package segmentation turns intensity planes into binary dense-region
// masks: automatic thresholding with a polarity fallback, morphological
// refinement, and unification of fragmented masks into one region.
package segmentation

import (
	"errors"
	"math"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

// ErrEmptyMask reports that both polarity attempts produced a mask with no
// foreground pixels. It degrades the affected image's row; it never aborts
// the batch.
var ErrEmptyMask = errors.New("segmentation produced an empty mask for both polarities")

// Options configures one segmentation pass. Method, polarity, offset and
// manual threshold come from the per-species config; the morphology fields
// are shared between species.
type Options struct {
	Method          string
	BrightObjects   bool
	OffsetPercent   float64
	ManualThreshold float64
	FillHoles       bool
	OpenIterations  int
	CloseIterations int
}

// Result is the outcome of a successful segmentation.
type Result struct {
	// Mask is the refined foreground mask
	Mask *models.Mask

	// Threshold is the intensity cut actually applied
	Threshold float64

	// FlippedPolarity reports that the configured polarity produced an
	// empty mask and the result comes from the single automatic retry
	FlippedPolarity bool
}

// Segment builds the dense-region mask for one plane. If the configured
// polarity yields an empty mask after refinement, it retries exactly once
// with the polarity flipped; a second empty mask is returned as ErrEmptyMask.
func Segment(plane *models.Plane, opts Options) (*Result, error) {
	mask, thr, err := segmentOnce(plane, opts, opts.BrightObjects)
	if err != nil {
		return nil, err
	}
	if !mask.Empty() {
		return &Result{Mask: mask, Threshold: thr}, nil
	}

	mask, thr, err = segmentOnce(plane, opts, !opts.BrightObjects)
	if err != nil {
		return nil, err
	}
	if !mask.Empty() {
		return &Result{Mask: mask, Threshold: thr, FlippedPolarity: true}, nil
	}
	return nil, ErrEmptyMask
}

// segmentOnce runs one full threshold-and-refine pass with the given
// polarity. The fixed order is: threshold, offset steps, fill holes, open,
// close.
func segmentOnce(plane *models.Plane, opts Options, bright bool) (*models.Mask, float64, error) {
	var thr float64
	if opts.Method == config.MethodManual {
		thr = opts.ManualThreshold
	} else {
		var err error
		thr, err = ComputeThreshold(plane, opts.Method)
		if err != nil {
			return nil, 0, err
		}
	}

	mask := applyThreshold(plane, thr, bright)

	// The offset is ignored in manual mode; elsewhere every full 10%
	// maps to one erosion (positive, shrink) or dilation (negative, grow)
	if opts.Method != config.MethodManual {
		steps := int(math.Round(math.Abs(opts.OffsetPercent) / 10))
		if steps > 0 {
			if opts.OffsetPercent > 0 {
				mask = ErodeN(mask, steps)
			} else {
				mask = DilateN(mask, steps)
			}
		}
	}

	if opts.FillHoles {
		mask = FillHoles(mask)
	}
	mask = Open(mask, opts.OpenIterations)
	mask = Close(mask, opts.CloseIterations)

	return mask, thr, nil
}

// applyThreshold classifies every pixel against the threshold. Bright
// polarity takes pixels at or above it, dark polarity at or below it.
func applyThreshold(plane *models.Plane, thr float64, bright bool) *models.Mask {
	mask := models.NewMask(plane.Width, plane.Height)
	for i, v := range plane.Data {
		if bright {
			mask.Bits[i] = v >= thr
		} else {
			mask.Bits[i] = v <= thr
		}
	}
	return mask
}
