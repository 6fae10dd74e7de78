package segmentation

import (
	"errors"
	"testing"

	"partitionk/pkg/config"
)

func defaultOptions() Options {
	return Options{
		Method:        config.MethodOtsu,
		BrightObjects: true,
	}
}

func TestSegmentBrightObjects(t *testing.T) {
	plane := bimodalPlane()
	res, err := Segment(plane, defaultOptions())
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if res.FlippedPolarity {
		t.Error("polarity should not flip for a bright-object plane")
	}
	if got := res.Mask.Area(); got != 256 {
		t.Errorf("mask area = %d, want 256 (the 16x16 bright square)", got)
	}
}

func TestSegmentPolarityFallback(t *testing.T) {
	// A thin bright strip on a uniform field: with bright polarity the
	// foreground is the 4-pixel strip, which a 5-step offset erosion
	// clears entirely. The single retry with dark polarity keeps the
	// large field, which survives the same erosion.
	plane := makePlane(64, 64, func(x, y int) float64 {
		if y >= 30 && y < 34 {
			return 2000
		}
		return 1000
	})
	opts := defaultOptions()
	opts.OffsetPercent = 50

	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed after polarity fallback: %v", err)
	}
	if !res.FlippedPolarity {
		t.Error("expected the result to come from the flipped-polarity retry")
	}
	if res.Mask.Empty() {
		t.Fatal("fallback mask is empty")
	}
}

func TestSegmentDarkObjects(t *testing.T) {
	plane := makePlane(64, 64, func(x, y int) float64 {
		if x >= 24 && x < 40 && y >= 24 && y < 40 {
			return 100
		}
		return 1000
	})
	opts := defaultOptions()
	opts.BrightObjects = false

	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if res.FlippedPolarity {
		t.Error("polarity should not flip for correctly configured dark objects")
	}
	if got := res.Mask.Area(); got != 256 {
		t.Errorf("mask area = %d, want 256", got)
	}
}

func TestSegmentManualIgnoresOffset(t *testing.T) {
	plane := bimodalPlane()
	opts := Options{
		Method:          config.MethodManual,
		BrightObjects:   true,
		ManualThreshold: 500,
		OffsetPercent:   50, // must be ignored in manual mode
	}
	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if res.Threshold != 500 {
		t.Errorf("threshold = %.1f, want the manual value 500", res.Threshold)
	}
	if got := res.Mask.Area(); got != 256 {
		t.Errorf("mask area = %d, want 256 (offset must not erode a manual mask)", got)
	}
}

func TestSegmentOffsetErodes(t *testing.T) {
	plane := bimodalPlane()
	opts := defaultOptions()
	opts.OffsetPercent = 10 // one erosion step

	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	// One erosion shrinks the 16x16 square to 14x14
	if got := res.Mask.Area(); got != 196 {
		t.Errorf("mask area after one erosion = %d, want 196", got)
	}
}

func TestSegmentOffsetDilates(t *testing.T) {
	plane := bimodalPlane()
	opts := defaultOptions()
	opts.OffsetPercent = -10 // one dilation step

	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	// One dilation grows the 16x16 square to 18x18
	if got := res.Mask.Area(); got != 324 {
		t.Errorf("mask area after one dilation = %d, want 324", got)
	}
}

func TestSegmentFillHoles(t *testing.T) {
	// Bright ring with a dark interior
	plane := makePlane(32, 32, func(x, y int) float64 {
		inOuter := x >= 8 && x < 24 && y >= 8 && y < 24
		inInner := x >= 12 && x < 20 && y >= 12 && y < 20
		if inOuter && !inInner {
			return 1000
		}
		return 100
	})

	opts := defaultOptions()
	res, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	ringArea := 16*16 - 8*8
	if got := res.Mask.Area(); got != ringArea {
		t.Fatalf("ring mask area = %d, want %d", got, ringArea)
	}

	opts.FillHoles = true
	res, err = Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment with fill failed: %v", err)
	}
	if got := res.Mask.Area(); got != 256 {
		t.Errorf("filled mask area = %d, want 256", got)
	}
}

func TestSegmentBothPolaritiesEmpty(t *testing.T) {
	// On a tiny plane a 5-step offset erosion clears any mask, so both
	// the configured polarity and the retry come back empty
	plane := makePlane(3, 3, func(x, y int) float64 {
		return float64(x + y)
	})
	opts := defaultOptions()
	opts.OffsetPercent = 50

	_, err := Segment(plane, opts)
	if !errors.Is(err, ErrEmptyMask) {
		t.Fatalf("expected ErrEmptyMask, got %v", err)
	}
}

func TestSegmentDeterminism(t *testing.T) {
	plane := bimodalPlane()
	opts := defaultOptions()
	opts.FillHoles = true
	opts.OpenIterations = 1

	first, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	second, err := Segment(plane, opts)
	if err != nil {
		t.Fatalf("Segment failed on rerun: %v", err)
	}
	if first.Mask.Area() != second.Mask.Area() || first.Threshold != second.Threshold {
		t.Errorf("segmentation not deterministic: area %d/%d threshold %.6f/%.6f",
			first.Mask.Area(), second.Mask.Area(), first.Threshold, second.Threshold)
	}
	for i := range first.Mask.Bits {
		if first.Mask.Bits[i] != second.Mask.Bits[i] {
			t.Fatalf("masks differ at pixel %d", i)
		}
	}
}
