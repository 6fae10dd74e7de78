// Package batch drives the per-image measurement pipeline over a whole
// image set and aggregates the results into a single output table. A stage
// failure degrades that image's row and the batch moves on; every input
// image ends in exactly one emitted row.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"partitionk/internal/models"
	"partitionk/pkg/config"
	"partitionk/pkg/imgsource"
	"partitionk/pkg/measure"
	"partitionk/pkg/segmentation"
)

// Summary reports the outcome of one batch run.
type Summary struct {
	// Images is the number of input images, Failures how many of their
	// rows carry an error tag
	Images   int
	Failures int

	// OutputPath is the table destination actually written
	OutputPath string
}

// Orchestrator runs the full pipeline for one immutable configuration.
type Orchestrator struct {
	cfg    *config.Config
	source *imgsource.Source
}

// NewOrchestrator creates an orchestrator for the given configuration.
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		source: imgsource.NewSource(cfg.Input.ImageDir, cfg.Input.Channels, cfg.Input.Frames),
	}
}

// Run processes every image in the configured directory and writes the
// output table once at the end. Only a missing or unreadable image
// directory is fatal; everything else degrades individual rows.
func (o *Orchestrator) Run() (*Summary, error) {
	names, err := o.source.List()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Found %d images in %s\n", len(names), o.cfg.Input.ImageDir)

	needMaskDir := o.cfg.Output.SaveMasks || o.cfg.Output.SaveOverlay || o.cfg.Output.CSVPath == ""
	if needMaskDir {
		if err := os.MkdirAll(o.cfg.Output.MaskDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create mask directory: %v", err)
		}
	}

	rows := make([]Row, 0, len(names))
	failures := 0
	for i, name := range names {
		fmt.Printf("[%d/%d] %s\n", i+1, len(names), name)
		row := o.processImage(name)
		if row.Err != "" {
			fmt.Printf("Warning: %s: %s\n", name, row.Err)
			failures++
		}
		rows = append(rows, row)
	}

	outPath := o.cfg.Output.CSVPath
	if outPath == "" {
		outPath = filepath.Join(o.cfg.Output.MaskDir,
			fmt.Sprintf("k12_unified_%d.csv", time.Now().UnixMilli()))
	}
	actual, err := WriteTable(rows, o.cfg, outPath)
	if err != nil {
		return nil, err
	}

	return &Summary{
		Images:     len(names),
		Failures:   failures,
		OutputPath: actual,
	}, nil
}

// baseName strips the image extension, treating .ome.tif as one unit.
func baseName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".ome.tif") || strings.HasSuffix(lower, ".ome.tiff") {
		return name[:strings.LastIndex(lower, ".ome.")]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// processImage runs the per-image state machine: Extract, Segment, Unify,
// BuildDilute, optional BackgroundCorrect, Measure, ComputeOverlap,
// ComputeK. Any stage failure tags the row and returns it with the fields
// known so far; the terminal state is always an emitted row.
func (o *Orchestrator) processImage(name string) Row {
	row := newRow(baseName(name), o.source.RelPath(name))
	cfg := o.cfg

	// Stage 1: extract one plane per species
	stack, err := o.source.Load(name)
	if err != nil {
		row.Err = errExtract
		return row
	}
	defer stack.Release()

	plane1, err := imgsource.ExtractPlane(stack, cfg.Species[0].Channel, cfg.Input.Projection)
	if err != nil {
		row.Err = errExtract
		return row
	}
	plane2, err := imgsource.ExtractPlane(stack, cfg.Species[1].Channel, cfg.Input.Projection)
	if err != nil {
		row.Err = errExtract
		return row
	}

	// Stage 2: segment both species, with the built-in polarity fallback
	res1, err1 := segmentation.Segment(plane1, o.segmentOptions(0))
	res2, err2 := segmentation.Segment(plane2, o.segmentOptions(1))
	if err1 != nil || err2 != nil {
		// Both polarities empty: emit zeroed areas and counts
		row.Measured = true
		row.Err = errSegment
		return row
	}
	if res1.FlippedPolarity {
		fmt.Printf("Warning: %s: channel %d polarity flipped after empty mask\n", name, cfg.Species[0].Channel)
	}
	if res2.FlippedPolarity {
		fmt.Printf("Warning: %s: channel %d polarity flipped after empty mask\n", name, cfg.Species[1].Channel)
	}

	// Stage 3: unify each mask into its canonical dense region
	uopts := segmentation.UnifyOptions{
		Policy:           cfg.Unify.Policy,
		DilateIterations: cfg.Unify.DilateIterations,
		MinParticlePx:    cfg.Unify.MinParticlePx,
		ExcludeEdges:     cfg.Unify.ExcludeEdges,
	}
	mask1 := segmentation.Unify(res1.Mask, uopts)
	mask2 := segmentation.Unify(res2.Mask, uopts)

	// Stage 4: build the dilute reference region per species
	dilute1 := measure.BuildDilute(mask1, mask2, cfg.Species[0].DiluteMode, cfg.Measurement.RingPx)
	dilute2 := measure.BuildDilute(mask2, mask1, cfg.Species[1].DiluteMode, cfg.Measurement.RingPx)

	// Stage 5: optional background correction of the measurement planes.
	// Masks are always built from the uncorrected planes.
	meas1, meas2 := plane1, plane2
	if cfg.Measurement.SubtractBackground {
		outside := measure.GlobalOutside(mask1, mask2)
		if outside != nil && !outside.Empty() {
			meas1 = measure.SubtractBackground(plane1, measure.MaskedMean(plane1, outside))
			meas2 = measure.SubtractBackground(plane2, measure.MaskedMean(plane2, outside))
		}
	}

	// Stage 6: measure dense and dilute means, areas and particle counts
	row.Measured = true
	row.MeanC1ROI1 = measure.MaskedMean(meas1, mask1)
	row.MeanC1Den = measure.MaskedMean(meas1, dilute1)
	row.MeanC2ROI2 = measure.MaskedMean(meas2, mask2)
	row.MeanC2Den = measure.MaskedMean(meas2, dilute2)
	row.Area1 = mask1.Area()
	row.Area2 = mask2.Area()
	row.Parts1 = segmentation.CountComponents(mask1)
	row.Parts2 = segmentation.CountComponents(mask2)

	// Stage 7: overlap QC metrics
	overlap := measure.ComputeOverlap(mask1, mask2)
	row.PartsOverlap = segmentation.CountComponents(overlap.Intersection)
	row.AreaOverlap = overlap.AreaIntersection
	row.AreaUnion = overlap.AreaUnion
	row.IoU = overlap.IoU

	// Stage 8: partition coefficients
	row.K1 = measure.PartitionCoefficient(row.MeanC1ROI1, row.MeanC1Den)
	row.K2 = measure.PartitionCoefficient(row.MeanC2ROI2, row.MeanC2Den)

	// QA artifacts are write-only diagnostics; failures are warnings
	o.saveArtifacts(row.Filename, plane1, mask1, mask2)

	return row
}

// segmentOptions assembles the per-species segmentation options.
func (o *Orchestrator) segmentOptions(species int) segmentation.Options {
	sp := o.cfg.Species[species]
	return segmentation.Options{
		Method:          sp.Method,
		BrightObjects:   sp.BrightObjects,
		OffsetPercent:   sp.OffsetPercent,
		ManualThreshold: sp.ManualThreshold,
		FillHoles:       o.cfg.Segmentation.FillHoles,
		OpenIterations:  o.cfg.Segmentation.OpenIterations,
		CloseIterations: o.cfg.Segmentation.CloseIterations,
	}
}

// saveArtifacts writes the per-species mask PNGs and the optional overlay
// preview for one image.
func (o *Orchestrator) saveArtifacts(base string, plane1 *models.Plane, mask1, mask2 *models.Mask) {
	cfg := o.cfg
	if cfg.Output.SaveMasks {
		for i, mask := range []*models.Mask{mask1, mask2} {
			path := filepath.Join(cfg.Output.MaskDir, fmt.Sprintf("%s__mask_IDP%d.png", base, i+1))
			if err := SaveMaskPNG(mask, path, cfg.Output.OverwriteMasks); err != nil {
				fmt.Printf("Warning: failed to save mask %s: %v\n", path, err)
			}
		}
	}
	if cfg.Output.SaveOverlay {
		path := filepath.Join(cfg.Output.MaskDir, base+"__overlay.png")
		if err := SaveOverlayPNG(plane1, mask1, mask2, path); err != nil {
			fmt.Printf("Warning: failed to save overlay %s: %v\n", path, err)
		}
	}
}
