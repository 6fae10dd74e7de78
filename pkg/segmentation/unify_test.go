package segmentation

import (
	"testing"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

// maskWithBlocks builds a mask with filled rectangles given as
// [minX, minY, maxX, maxY] inclusive.
func maskWithBlocks(width, height int, blocks ...[4]int) *models.Mask {
	m := models.NewMask(width, height)
	for _, b := range blocks {
		for y := b[1]; y <= b[3]; y++ {
			for x := b[0]; x <= b[2]; x++ {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

func TestUnifyNonePassesThrough(t *testing.T) {
	m := maskWithBlocks(32, 32, [4]int{2, 2, 10, 10}, [4]int{20, 20, 25, 25})
	out := Unify(m, UnifyOptions{Policy: config.UnifyNone})
	if out.Area() != m.Area() {
		t.Errorf("None policy changed the area: %d -> %d", m.Area(), out.Area())
	}
	if &out.Bits[0] == &m.Bits[0] {
		t.Error("None policy must return a new mask, not the input")
	}
}

func TestUnifyLargestParticleSingleComponent(t *testing.T) {
	// Two components over the minimum size; only the larger survives
	m := maskWithBlocks(64, 64, [4]int{2, 2, 13, 13}, [4]int{30, 30, 39, 39})
	out := Unify(m, UnifyOptions{Policy: config.UnifyLargest, MinParticlePx: 50})

	if got := CountComponents(out); got != 1 {
		t.Fatalf("largest-particle output has %d components, want 1", got)
	}
	if got := out.Area(); got != 144 {
		t.Errorf("kept area = %d, want 144 (the 12x12 block)", got)
	}
}

func TestUnifyLargestParticleMinSize(t *testing.T) {
	// Both components below the minimum size: nothing qualifies
	m := maskWithBlocks(64, 64, [4]int{2, 2, 5, 5}, [4]int{30, 30, 32, 32})
	out := Unify(m, UnifyOptions{Policy: config.UnifyLargest, MinParticlePx: 50})
	if !out.Empty() {
		t.Errorf("expected an empty mask when no component reaches the minimum size, area = %d", out.Area())
	}
}

func TestUnifyLargestParticleExcludesEdges(t *testing.T) {
	// The bigger component touches the border and is excluded
	m := maskWithBlocks(64, 64, [4]int{0, 0, 19, 19}, [4]int{30, 30, 39, 39})
	out := Unify(m, UnifyOptions{
		Policy:        config.UnifyLargest,
		MinParticlePx: 50,
		ExcludeEdges:  true,
	})
	if got := out.Area(); got != 100 {
		t.Errorf("kept area = %d, want 100 (the interior block)", got)
	}
}

func TestUnifyLargestParticleEmptyInput(t *testing.T) {
	m := models.NewMask(16, 16)
	out := Unify(m, UnifyOptions{Policy: config.UnifyLargest, MinParticlePx: 1})
	if got := CountComponents(out); got != 0 {
		t.Errorf("empty input should stay empty, got %d components", got)
	}
}

func TestUnifyConvexHullCoversComponents(t *testing.T) {
	m := maskWithBlocks(64, 64, [4]int{4, 4, 13, 13}, [4]int{40, 40, 49, 49})
	out := Unify(m, UnifyOptions{Policy: config.UnifyConvexHull, MinParticlePx: 10})

	if got := CountComponents(out); got != 1 {
		t.Fatalf("convex hull output has %d components, want 1", got)
	}
	// Every input pixel must be inside the hull
	for i, fg := range m.Bits {
		if fg && !out.Bits[i] {
			t.Fatalf("input pixel %d not covered by the hull", i)
		}
	}
	// The hull must span the gap between the blocks
	if !out.At(26, 26) {
		t.Error("hull does not cover the region between the components")
	}
}

func TestUnifyConvexHullStable(t *testing.T) {
	m := maskWithBlocks(64, 64, [4]int{4, 4, 13, 13}, [4]int{40, 10, 49, 19}, [4]int{20, 40, 29, 49})
	once := Unify(m, UnifyOptions{Policy: config.UnifyConvexHull, MinParticlePx: 10})
	twice := Unify(once, UnifyOptions{Policy: config.UnifyConvexHull, MinParticlePx: 10})

	if once.Area() != twice.Area() {
		t.Fatalf("hull not stable under recomputation: %d -> %d", once.Area(), twice.Area())
	}
	for i := range once.Bits {
		if once.Bits[i] != twice.Bits[i] {
			t.Fatalf("hull recomputation differs at pixel %d", i)
		}
	}
}

func TestUnifyBoundingBox(t *testing.T) {
	m := maskWithBlocks(64, 64, [4]int{10, 10, 14, 14}, [4]int{40, 30, 44, 34})
	out := Unify(m, UnifyOptions{Policy: config.UnifyBoundingBox})

	// The enclosing rectangle spans x 10..44, y 10..34
	want := 35 * 25
	if got := out.Area(); got != want {
		t.Errorf("bounding box area = %d, want %d", got, want)
	}
	if got := CountComponents(out); got != 1 {
		t.Errorf("bounding box output has %d components, want 1", got)
	}
}

func TestUnifyDilateMergeBridgesGap(t *testing.T) {
	// Two blocks 4 pixels apart: two dilate-erode iterations bridge them
	m := maskWithBlocks(64, 64, [4]int{10, 10, 19, 19}, [4]int{24, 10, 33, 19})
	if got := CountComponents(m); got != 2 {
		t.Fatalf("precondition failed: %d components, want 2", got)
	}

	out := Unify(m, UnifyOptions{Policy: config.UnifyDilateMerge, DilateIterations: 2})
	if got := CountComponents(out); got != 1 {
		t.Errorf("dilate-merge output has %d components, want 1", got)
	}
}

func TestFillHolesKeepsBorderBackground(t *testing.T) {
	// A closed rectangular ring: the hole is enclosed, the outside is not
	m := maskWithBlocks(32, 32,
		[4]int{8, 8, 23, 9},   // top
		[4]int{8, 22, 23, 23}, // bottom
		[4]int{8, 10, 9, 21},  // left
		[4]int{22, 10, 23, 21}) // right
	filled := FillHoles(m)
	// The interior is enclosed and must be filled
	if !filled.At(16, 16) {
		t.Error("enclosed interior was not filled")
	}
	// Background outside the ring stays background
	if filled.At(2, 2) {
		t.Error("border-connected background was filled")
	}
}

func TestErodeDilateInverse(t *testing.T) {
	m := maskWithBlocks(32, 32, [4]int{10, 10, 20, 20})
	restored := DilateN(ErodeN(m, 2), 2)
	if restored.Area() != m.Area() {
		t.Errorf("dilate(erode) of a convex block changed area: %d -> %d", m.Area(), restored.Area())
	}
}

func TestComponentsBookkeeping(t *testing.T) {
	m := maskWithBlocks(32, 32, [4]int{0, 0, 4, 4}, [4]int{10, 10, 12, 12})
	comps := Components(m)
	if len(comps) != 2 {
		t.Fatalf("got %d components, want 2", len(comps))
	}
	var edge, interior *Component
	for _, c := range comps {
		if c.TouchesEdge {
			edge = c
		} else {
			interior = c
		}
	}
	if edge == nil || interior == nil {
		t.Fatal("expected one border component and one interior component")
	}
	if edge.Area() != 25 || interior.Area() != 9 {
		t.Errorf("areas = %d and %d, want 25 and 9", edge.Area(), interior.Area())
	}
	if interior.MinX != 10 || interior.MaxX != 12 || interior.MinY != 10 || interior.MaxY != 12 {
		t.Errorf("interior bounding box = (%d,%d)-(%d,%d), want (10,10)-(12,12)",
			interior.MinX, interior.MinY, interior.MaxX, interior.MaxY)
	}
}
