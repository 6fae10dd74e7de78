package measure

import (
	"partitionk/internal/models"
	"partitionk/pkg/config"
	"partitionk/pkg/segmentation"
)

// BuildDilute derives the dilute reference mask for one species. self is
// that species' dense mask; other is the other species' dense mask and may
// be nil. With a nil other mask, the cross-referencing modes (Other IDP
// mask, Outside both ring) degenerate to an all-background mask rather than
// an error, which surfaces downstream as a NaN partition coefficient.
func BuildDilute(self, other *models.Mask, mode string, ringPx int) *models.Mask {
	switch mode {
	case config.DiluteOtherMask:
		if other == nil {
			return models.NewMask(self.Width, self.Height)
		}
		return other.Clone()

	case config.DiluteOwnRing:
		// Annulus immediately surrounding the dense region
		return Subtract(segmentation.DilateN(self, ringPx), self)

	case config.DiluteBothRing:
		if other == nil {
			return models.NewMask(self.Width, self.Height)
		}
		both := Union(self, other)
		return Subtract(segmentation.DilateN(both, ringPx), both)

	default: // config.DiluteGlobalOut
		both := self
		if other != nil {
			both = Union(self, other)
		}
		return Invert(both)
	}
}

// GlobalOutside returns the region outside both masks, the background
// estimation region for the optional background correction. Either mask may
// be nil.
func GlobalOutside(a, b *models.Mask) *models.Mask {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return Invert(b)
	case b == nil:
		return Invert(a)
	default:
		return Invert(Union(a, b))
	}
}
