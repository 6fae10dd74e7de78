package segmentation

import (
	"partitionk/internal/models"
)

// Erode removes foreground pixels that have any background pixel in their
// 3x3 neighborhood. Pixels beyond the image border count as background, so
// foreground touching the edge shrinks too.
func Erode(m *models.Mask) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height || !m.At(nx, ny) {
						keep = false
						break
					}
				}
			}
			out.Set(x, y, keep)
		}
	}
	return out
}

// Dilate adds every background pixel that has a foreground pixel in its 3x3
// neighborhood.
func Dilate(m *models.Mask) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) {
				out.Set(x, y, true)
				continue
			}
			found := false
			for dy := -1; dy <= 1 && !found; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < m.Width && ny < m.Height && m.At(nx, ny) {
						found = true
						break
					}
				}
			}
			out.Set(x, y, found)
		}
	}
	return out
}

// ErodeN and DilateN apply n passes; n <= 0 returns a copy.
func ErodeN(m *models.Mask, n int) *models.Mask {
	out := m.Clone()
	for i := 0; i < n; i++ {
		out = Erode(out)
		if out.Empty() {
			break
		}
	}
	return out
}

func DilateN(m *models.Mask, n int) *models.Mask {
	out := m.Clone()
	for i := 0; i < n; i++ {
		out = Dilate(out)
	}
	return out
}

// Open smooths the mask with n erode-then-dilate passes, removing
// protrusions and specks smaller than the structuring element.
func Open(m *models.Mask, n int) *models.Mask {
	out := m.Clone()
	for i := 0; i < n; i++ {
		out = Dilate(Erode(out))
	}
	return out
}

// Close smooths the mask with n dilate-then-erode passes, closing small
// gaps and indentations.
func Close(m *models.Mask, n int) *models.Mask {
	out := m.Clone()
	for i := 0; i < n; i++ {
		out = Erode(Dilate(out))
	}
	return out
}

// FillHoles fills every background region not connected to the image border,
// using 4-connectivity for the background flood.
func FillHoles(m *models.Mask) *models.Mask {
	reached := models.NewMask(m.Width, m.Height)
	var stack []int

	push := func(x, y int) {
		if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
			return
		}
		if m.At(x, y) || reached.At(x, y) {
			return
		}
		reached.Set(x, y, true)
		stack = append(stack, y*m.Width+x)
	}

	// Seed the flood from every border pixel
	for x := 0; x < m.Width; x++ {
		push(x, 0)
		push(x, m.Height-1)
	}
	for y := 0; y < m.Height; y++ {
		push(0, y)
		push(m.Width-1, y)
	}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := idx%m.Width, idx/m.Width
		push(x-1, y)
		push(x+1, y)
		push(x, y-1)
		push(x, y+1)
	}

	// Everything the flood did not reach is enclosed, hence foreground
	out := models.NewMask(m.Width, m.Height)
	for i := range out.Bits {
		out.Bits[i] = m.Bits[i] || !reached.Bits[i]
	}
	return out
}

// Component is one 4-connected foreground region of a mask.
type Component struct {
	// Pixels holds the row-major indices of the component's pixels
	Pixels []int

	// Bounding box of the component, inclusive
	MinX, MinY, MaxX, MaxY int

	// TouchesEdge reports whether any pixel lies on the image border
	TouchesEdge bool
}

// Area returns the pixel count of the component.
func (c *Component) Area() int {
	return len(c.Pixels)
}

// Components enumerates the 4-connected foreground regions of a mask via
// stack-based flood fill.
func Components(m *models.Mask) []*Component {
	visited := make([]bool, len(m.Bits))
	var comps []*Component

	for start, fg := range m.Bits {
		if !fg || visited[start] {
			continue
		}
		comp := &Component{
			MinX: m.Width, MinY: m.Height, MaxX: -1, MaxY: -1,
		}
		stack := []int{start}
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp.Pixels = append(comp.Pixels, idx)

			x, y := idx%m.Width, idx/m.Width
			if x < comp.MinX {
				comp.MinX = x
			}
			if x > comp.MaxX {
				comp.MaxX = x
			}
			if y < comp.MinY {
				comp.MinY = y
			}
			if y > comp.MaxY {
				comp.MaxY = y
			}
			if x == 0 || y == 0 || x == m.Width-1 || y == m.Height-1 {
				comp.TouchesEdge = true
			}

			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				ni := ny*m.Width + nx
				if m.Bits[ni] && !visited[ni] {
					visited[ni] = true
					stack = append(stack, ni)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// CountComponents returns the number of 4-connected foreground regions.
func CountComponents(m *models.Mask) int {
	return len(Components(m))
}
