package measure

import (
	"math"
	"testing"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

const tol = 1e-6

func planeWith(width, height int, pattern func(x, y int) float64) *models.Plane {
	p := models.NewPlane(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p.Data[y*width+x] = pattern(x, y)
		}
	}
	return p
}

func rectMask(width, height, minX, minY, maxX, maxY int) *models.Mask {
	m := models.NewMask(width, height)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			m.Set(x, y, true)
		}
	}
	return m
}

func TestMaskedMean(t *testing.T) {
	plane := planeWith(16, 16, func(x, y int) float64 {
		if x < 8 {
			return 10
		}
		return 30
	})

	left := rectMask(16, 16, 0, 0, 7, 15)
	if got := MaskedMean(plane, left); math.Abs(got-10) > tol {
		t.Errorf("left mean = %v, want 10", got)
	}

	all := rectMask(16, 16, 0, 0, 15, 15)
	if got := MaskedMean(plane, all); math.Abs(got-20) > tol {
		t.Errorf("overall mean = %v, want 20", got)
	}
}

func TestMaskedMeanEmptyMaskIsNaN(t *testing.T) {
	plane := planeWith(8, 8, func(x, y int) float64 { return 5 })
	empty := models.NewMask(8, 8)
	if got := MaskedMean(plane, empty); !math.IsNaN(got) {
		t.Errorf("mean over an empty mask = %v, want NaN", got)
	}
}

func TestMaskAlgebraDisjoint(t *testing.T) {
	a := rectMask(32, 32, 0, 0, 7, 7)
	b := rectMask(32, 32, 16, 16, 23, 23)

	o := ComputeOverlap(a, b)
	if o.AreaIntersection != 0 {
		t.Errorf("disjoint intersection area = %d, want 0", o.AreaIntersection)
	}
	if o.IoU != 0 {
		t.Errorf("disjoint IoU = %v, want 0", o.IoU)
	}
	if o.AreaUnion != a.Area()+b.Area() {
		t.Errorf("disjoint union area = %d, want %d", o.AreaUnion, a.Area()+b.Area())
	}
}

func TestMaskAlgebraIdentical(t *testing.T) {
	a := rectMask(32, 32, 4, 4, 20, 20)
	o := ComputeOverlap(a, a.Clone())
	if math.Abs(o.IoU-1) > tol {
		t.Errorf("IoU of identical masks = %v, want 1", o.IoU)
	}
	if o.AreaIntersection != a.Area() || o.AreaUnion != a.Area() {
		t.Errorf("identical masks: intersection %d union %d, want both %d",
			o.AreaIntersection, o.AreaUnion, a.Area())
	}
}

func TestMaskAlgebraUnionBounds(t *testing.T) {
	a := rectMask(32, 32, 0, 0, 15, 15)
	b := rectMask(32, 32, 8, 8, 23, 23)
	o := ComputeOverlap(a, b)

	max := a.Area()
	if b.Area() > max {
		max = b.Area()
	}
	if o.AreaUnion < max {
		t.Errorf("union area %d smaller than max(%d, %d)", o.AreaUnion, a.Area(), b.Area())
	}
	if o.AreaUnion > a.Area()+b.Area() {
		t.Errorf("union area %d exceeds %d + %d", o.AreaUnion, a.Area(), b.Area())
	}
}

func TestMaskAlgebraBothEmptyIoUUndefined(t *testing.T) {
	o := ComputeOverlap(models.NewMask(8, 8), models.NewMask(8, 8))
	if !math.IsNaN(o.IoU) {
		t.Errorf("IoU over empty union = %v, want NaN", o.IoU)
	}
}

func TestPartitionCoefficient(t *testing.T) {
	if got := PartitionCoefficient(30, 10); math.Abs(got-3) > tol {
		t.Errorf("K = %v, want 3", got)
	}
	if got := PartitionCoefficient(30, 0); !math.IsNaN(got) {
		t.Errorf("K with zero dilute mean = %v, want NaN", got)
	}
	if got := PartitionCoefficient(30, -1); !math.IsNaN(got) {
		t.Errorf("K with negative dilute mean = %v, want NaN", got)
	}
	if got := PartitionCoefficient(30, math.NaN()); !math.IsNaN(got) {
		t.Errorf("K with undefined dilute mean = %v, want NaN", got)
	}
	if got := PartitionCoefficient(math.NaN(), 10); !math.IsNaN(got) {
		t.Errorf("K with undefined dense mean = %v, want NaN", got)
	}
}

func TestSubtractBackgroundNeverIncreases(t *testing.T) {
	plane := planeWith(16, 16, func(x, y int) float64 {
		return float64(x * y)
	})
	corrected := SubtractBackground(plane, 40)
	for i := range plane.Data {
		if corrected.Data[i] > plane.Data[i]+tol {
			t.Fatalf("pixel %d increased: %v -> %v", i, plane.Data[i], corrected.Data[i])
		}
		if corrected.Data[i] < 0 {
			t.Fatalf("pixel %d went negative: %v", i, corrected.Data[i])
		}
	}

	mask := rectMask(16, 16, 4, 4, 12, 12)
	if MaskedMean(corrected, mask) > MaskedMean(plane, mask)+tol {
		t.Error("corrected masked mean exceeds the uncorrected mean")
	}
}

func TestBuildDiluteOtherMask(t *testing.T) {
	self := rectMask(32, 32, 0, 0, 7, 7)
	other := rectMask(32, 32, 16, 16, 23, 23)

	d := BuildDilute(self, other, config.DiluteOtherMask, 10)
	if d.Area() != other.Area() {
		t.Errorf("dilute area = %d, want the other mask's %d", d.Area(), other.Area())
	}
	for i := range d.Bits {
		if d.Bits[i] != other.Bits[i] {
			t.Fatalf("dilute mask differs from the other mask at pixel %d", i)
		}
	}
}

func TestBuildDiluteOwnRing(t *testing.T) {
	self := rectMask(64, 64, 20, 20, 29, 29)
	d := BuildDilute(self, nil, config.DiluteOwnRing, 3)

	// The annulus never overlaps the dense region
	for i := range d.Bits {
		if d.Bits[i] && self.Bits[i] {
			t.Fatal("ring overlaps the dense mask")
		}
	}
	// A 10x10 block dilated 3 times is 16x16; the annulus is the difference
	want := 16*16 - 10*10
	if d.Area() != want {
		t.Errorf("ring area = %d, want %d", d.Area(), want)
	}
}

func TestBuildDiluteBothRing(t *testing.T) {
	self := rectMask(64, 64, 10, 10, 19, 19)
	other := rectMask(64, 64, 40, 40, 49, 49)
	d := BuildDilute(self, other, config.DiluteBothRing, 2)

	both := Union(self, other)
	for i := range d.Bits {
		if d.Bits[i] && both.Bits[i] {
			t.Fatal("ring overlaps a dense mask")
		}
	}
	// Two separated 10x10 blocks each grow to 14x14
	want := 2 * (14*14 - 10*10)
	if d.Area() != want {
		t.Errorf("ring area = %d, want %d", d.Area(), want)
	}
}

func TestBuildDiluteGlobalOutside(t *testing.T) {
	self := rectMask(32, 32, 0, 0, 15, 31)
	other := rectMask(32, 32, 16, 0, 31, 31)
	d := BuildDilute(self, other, config.DiluteGlobalOut, 10)
	if !d.Empty() {
		t.Errorf("masks cover the image; global outside should be empty, area = %d", d.Area())
	}

	d = BuildDilute(rectMask(32, 32, 0, 0, 7, 7), nil, config.DiluteGlobalOut, 10)
	if d.Area() != 32*32-64 {
		t.Errorf("global outside area = %d, want %d", d.Area(), 32*32-64)
	}
}

func TestBuildDiluteMissingOtherDegenerates(t *testing.T) {
	self := rectMask(32, 32, 4, 4, 10, 10)
	for _, mode := range []string{config.DiluteOtherMask, config.DiluteBothRing} {
		d := BuildDilute(self, nil, mode, 10)
		if !d.Empty() {
			t.Errorf("%s with a missing other mask should be all background, area = %d", mode, d.Area())
		}
	}
}

func TestDegenerateDiluteYieldsUndefinedK(t *testing.T) {
	plane := planeWith(32, 32, func(x, y int) float64 { return 100 })
	self := rectMask(32, 32, 4, 4, 10, 10)
	dilute := BuildDilute(self, nil, config.DiluteOtherMask, 10)

	diluteMean := MaskedMean(plane, dilute)
	if !math.IsNaN(diluteMean) {
		t.Fatalf("dilute mean over a degenerate region = %v, want NaN", diluteMean)
	}
	if k := PartitionCoefficient(MaskedMean(plane, self), diluteMean); !math.IsNaN(k) {
		t.Errorf("K = %v, want NaN for a degenerate dilute region", k)
	}
}
