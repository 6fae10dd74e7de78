// Package imgsource loads multi-dimensional microscopy images and resolves
// configured channels to single 2D intensity planes. It is the boundary to
// the acquisition side of the workflow: everything downstream operates on
// planes and masks only.
package imgsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

// Stack is a loaded multi-dimensional image: a flat list of decoded 2D
// planes plus the (C, Z, T) shape used to address them. Planes are stored in
// acquisition order with the channel axis varying fastest, then Z, then T,
// which is the page order of OME-TIFF exports (dimension order XYCZT).
type Stack struct {
	// Planes holds every decoded page of the file
	Planes []*models.Plane

	// Channels, Slices and Frames describe the stack shape
	Channels int
	Slices   int
	Frames   int

	// Width and Height are the plane dimensions in pixels
	Width  int
	Height int
}

// Release drops the decoded planes so the working set of one image does not
// outlive its processing.
func (s *Stack) Release() {
	s.Planes = nil
}

// planeAt returns the page for (channel, slice, frame), all zero-based.
func (s *Stack) planeAt(c, z, t int) *models.Plane {
	return s.Planes[t*s.Slices*s.Channels+z*s.Channels+c]
}

// Source locates and loads the input images of one batch.
type Source struct {
	// dir is the input directory holding the image files
	dir string

	// channels and frames describe how the flat page list of each file
	// is interpreted; the Z depth is derived per file from its page count
	channels int
	frames   int
}

// NewSource creates an image source over the given directory. The channel
// and frame counts come from configuration since plain TIFF pages carry no
// dimensional metadata of their own.
func NewSource(dir string, channels, frames int) *Source {
	return &Source{dir: dir, channels: channels, frames: frames}
}

// List returns the image filenames of the batch in alphanumeric order.
// A missing or unreadable directory is the only fatal condition of a run.
func (s *Source) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory %s: %v", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".tif" || ext == ".tiff" {
			names = append(names, entry.Name())
		}
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no TIFF images found in %s", s.dir)
	}

	sort.Strings(names)
	return names, nil
}

// Load decodes one image file into a stack. The page count must be divisible
// by channels*frames; the remaining factor is the Z depth.
func (s *Source) Load(name string) (*Stack, error) {
	path := filepath.Join(s.dir, name)
	planes, err := decodePages(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v", name, err)
	}

	if len(planes)%(s.channels*s.frames) != 0 {
		return nil, fmt.Errorf("%s: %d pages not divisible by %d channels x %d frames",
			name, len(planes), s.channels, s.frames)
	}
	slices := len(planes) / (s.channels * s.frames)

	// All pages of one stack must agree on dimensions
	w, h := planes[0].Width, planes[0].Height
	for i, p := range planes {
		if p.Width != w || p.Height != h {
			return nil, fmt.Errorf("%s: page %d is %dx%d, expected %dx%d",
				name, i, p.Width, p.Height, w, h)
		}
	}

	return &Stack{
		Planes:   planes,
		Channels: s.channels,
		Slices:   slices,
		Frames:   s.frames,
		Width:    w,
		Height:   h,
	}, nil
}

// RelPath returns the path of an image relative to the working directory,
// as recorded in the image_rel output column.
func (s *Source) RelPath(name string) string {
	return filepath.Join(s.dir, name)
}

// ExtractPlane resolves a configured 1-based channel index and projection
// mode to a single intensity plane, always at the first time frame. The
// Z axis is reduced by the projection; mode None takes the first slice.
func ExtractPlane(stack *Stack, channel int, projection string) (*models.Plane, error) {
	c := channel - 1
	if c < 0 || c >= stack.Channels {
		return nil, fmt.Errorf("channel %d out of range for stack with %d channels", channel, stack.Channels)
	}

	if stack.Slices == 1 || projection == config.ProjectionNone {
		return stack.planeAt(c, 0, 0).Clone(), nil
	}

	out := models.NewPlane(stack.Width, stack.Height)
	n := stack.Slices
	switch projection {
	case config.ProjectionMax:
		for z := 0; z < n; z++ {
			p := stack.planeAt(c, z, 0)
			for i, v := range p.Data {
				if z == 0 || v > out.Data[i] {
					out.Data[i] = v
				}
			}
		}
	case config.ProjectionMean:
		for z := 0; z < n; z++ {
			p := stack.planeAt(c, z, 0)
			for i, v := range p.Data {
				out.Data[i] += v
			}
		}
		for i := range out.Data {
			out.Data[i] /= float64(n)
		}
	case config.ProjectionMedian:
		column := make([]float64, n)
		for i := range out.Data {
			for z := 0; z < n; z++ {
				column[z] = stack.planeAt(c, z, 0).Data[i]
			}
			sort.Float64s(column)
			if n%2 == 1 {
				out.Data[i] = column[n/2]
			} else {
				out.Data[i] = (column[n/2-1] + column[n/2]) / 2
			}
		}
	default:
		return nil, fmt.Errorf("unknown projection mode %q", projection)
	}
	return out, nil
}
