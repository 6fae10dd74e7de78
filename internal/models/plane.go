package models

import (
	"image"
	"image/color"
)

// Plane is a single-channel 2D intensity image: one channel, one time point,
// already projected across the depth axis if projection was configured.
// A Plane is never mutated after extraction; stages that need a modified
// plane (e.g. background subtraction) work on a copy.
type Plane struct {
	// Data holds the pixel intensities in row-major order
	Data []float64

	// Width and Height are the plane dimensions in pixels
	Width  int
	Height int
}

// NewPlane allocates a zero-valued plane with the given dimensions.
func NewPlane(width, height int) *Plane {
	return &Plane{
		Data:   make([]float64, width*height),
		Width:  width,
		Height: height,
	}
}

// PlaneFromImage converts a decoded image page into an intensity plane.
// All color models are reduced to 16-bit luminance, which preserves the
// dynamic range of 16-bit grayscale microscopy data.
func PlaneFromImage(img image.Image) *Plane {
	bounds := img.Bounds()
	p := NewPlane(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			p.Data[(y-bounds.Min.Y)*p.Width+(x-bounds.Min.X)] = float64(g.Y)
		}
	}
	return p
}

// At returns the intensity at (x, y).
func (p *Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}

// Clone returns a deep copy of the plane.
func (p *Plane) Clone() *Plane {
	out := NewPlane(p.Width, p.Height)
	copy(out.Data, p.Data)
	return out
}

// Range returns the minimum and maximum intensity of the plane. An empty
// plane reports (0, 0).
func (p *Plane) Range() (min, max float64) {
	if len(p.Data) == 0 {
		return 0, 0
	}
	min, max = p.Data[0], p.Data[0]
	for _, v := range p.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Mask is a binary foreground/background image with the same dimensions as
// the plane it was derived from. Masks are value types: every mask
// transformation returns a new mask, and measurement never mutates one.
type Mask struct {
	// Bits holds the foreground flags in row-major order
	Bits []bool

	// Width and Height are the mask dimensions in pixels
	Width  int
	Height int
}

// NewMask allocates an all-background mask with the given dimensions.
func NewMask(width, height int) *Mask {
	return &Mask{
		Bits:   make([]bool, width*height),
		Width:  width,
		Height: height,
	}
}

// At reports whether (x, y) is foreground.
func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, fg bool) {
	m.Bits[y*m.Width+x] = fg
}

// Area returns the number of foreground pixels.
func (m *Mask) Area() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Empty reports whether the mask has no foreground pixels.
func (m *Mask) Empty() bool {
	for _, b := range m.Bits {
		if b {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Bits, m.Bits)
	return out
}

// Weights returns the mask as a 0/1 vector aligned with Plane.Data, so a
// masked sum is an ordinary dot product over addressable arrays rather than
// anything depending on transient selection state.
func (m *Mask) Weights() []float64 {
	w := make([]float64, len(m.Bits))
	for i, b := range m.Bits {
		if b {
			w[i] = 1
		}
	}
	return w
}

// ToImage renders the mask as an 8-bit grayscale image with white
// foreground, suitable for PNG export.
func (m *Mask) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, b := range m.Bits {
		if b {
			img.Pix[i] = 255
		}
	}
	return img
}
