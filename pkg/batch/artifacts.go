package batch

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"partitionk/internal/models"
	"partitionk/pkg/segmentation"
)

// SaveMaskPNG writes a mask as a black/white PNG for visual audit. Existing
// files are kept unless overwrite is set, so reruns do not clobber masks a
// user may have annotated.
func SaveMaskPNG(mask *models.Mask, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create mask file: %v", err)
	}
	defer file.Close()

	if err := png.Encode(file, mask.ToImage()); err != nil {
		return fmt.Errorf("failed to encode mask: %v", err)
	}
	return nil
}

// SaveOverlayPNG draws the dense-region outlines of both species over the
// normalized first-channel plane: species 1 in green, species 2 in magenta.
// The overlay is a write-only diagnostic; the pipeline never reads it back.
func SaveOverlayPNG(plane *models.Plane, mask1, mask2 *models.Mask, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, plane.Width, plane.Height))

	// Normalize the plane into 8-bit gray for the backdrop
	min, max := plane.Range()
	scale := 0.0
	if max > min {
		scale = 255 / (max - min)
	}
	for y := 0; y < plane.Height; y++ {
		for x := 0; x < plane.Width; x++ {
			g := uint8((plane.At(x, y) - min) * scale)
			img.Set(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	drawOutline(img, mask1, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	drawOutline(img, mask2, color.RGBA{R: 255, G: 0, B: 255, A: 255})

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create overlay file: %v", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode overlay: %v", err)
	}
	return nil
}

// drawOutline paints the one-pixel boundary of the mask, the foreground
// pixels removed by a single erosion.
func drawOutline(img *image.RGBA, mask *models.Mask, c color.RGBA) {
	inner := segmentation.Erode(mask)
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) && !inner.At(x, y) {
				img.Set(x, y, c)
			}
		}
	}
}
