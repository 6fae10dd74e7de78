package batch

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"partitionk/pkg/config"
)

// Error tags carried in the error column of degraded rows.
const (
	errExtract = "failed to extract planes"
	errSegment = "failed to obtain masks"
)

// Row is the measurement record of one input image. Exactly one row exists
// per image; a stage failure leaves the later fields at their zero/NaN
// values and sets Err, it never fabricates numbers.
type Row struct {
	// Filename is the image basename without extension; ImageRel the
	// path relative to the working directory
	Filename string
	ImageRel string

	// Measured reports that the pipeline reached the measurement stage;
	// when false the measurement columns are emitted blank
	Measured bool

	// Dense and dilute mean intensities per species
	MeanC1ROI1 float64
	MeanC1Den  float64
	MeanC2ROI2 float64
	MeanC2Den  float64

	// Partition coefficients
	K1 float64
	K2 float64

	// Dense mask areas and particle counts
	Area1  int
	Area2  int
	Parts1 int
	Parts2 int

	// Overlap QC metrics between the two dense masks
	PartsOverlap int
	AreaOverlap  int
	AreaUnion    int
	IoU          float64

	// Err tags a partial row; empty on success
	Err string
}

// newRow returns a row with every float field undefined.
func newRow(filename, imageRel string) Row {
	nan := math.NaN()
	return Row{
		Filename:   filename,
		ImageRel:   imageRel,
		MeanC1ROI1: nan,
		MeanC1Den:  nan,
		MeanC2ROI2: nan,
		MeanC2Den:  nan,
		K1:         nan,
		K2:         nan,
		IoU:        nan,
	}
}

// columns is the fixed output column order.
var columns = []string{
	"filename", "image_rel", "ch1", "ch2", "zproj",
	"mean_C1_ROI1", "mean_C1_den", "mean_C2_ROI2", "mean_C2_den",
	"K1", "K2",
	"area_ROI1_px", "area_ROI2_px", "parts1", "parts2",
	"parts_overlap", "area_overlap_px", "area_union_px", "iou_global",
	"th1", "th2", "obj1_bright", "obj2_bright", "thr_on_8bit",
	"th1_off", "th2_off", "th1_man", "th2_man",
	"open", "close", "fill", "unify", "dilate", "min_size", "exclude_edges",
	"dilute1_mode", "dilute2_mode", "ring_px", "sub_bg", "error",
}

// fmtFloat renders a float with the literal NaN token for undefined values.
func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func fmtBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// record serializes one row plus the configuration provenance columns.
func record(r Row, cfg *config.Config) []string {
	measurement := make([]string, 14)
	if r.Measured {
		measurement = []string{
			fmtFloat(r.MeanC1ROI1), fmtFloat(r.MeanC1Den),
			fmtFloat(r.MeanC2ROI2), fmtFloat(r.MeanC2Den),
			fmtFloat(r.K1), fmtFloat(r.K2),
			strconv.Itoa(r.Area1), strconv.Itoa(r.Area2),
			strconv.Itoa(r.Parts1), strconv.Itoa(r.Parts2),
			strconv.Itoa(r.PartsOverlap),
			strconv.Itoa(r.AreaOverlap), strconv.Itoa(r.AreaUnion),
			fmtFloat(r.IoU),
		}
	}

	rec := []string{
		r.Filename,
		r.ImageRel,
		strconv.Itoa(cfg.Species[0].Channel),
		strconv.Itoa(cfg.Species[1].Channel),
		cfg.Input.Projection,
	}
	rec = append(rec, measurement...)
	rec = append(rec,
		cfg.Species[0].Method,
		cfg.Species[1].Method,
		fmtBool(cfg.Species[0].BrightObjects),
		fmtBool(cfg.Species[1].BrightObjects),
		"1", // thresholds are computed on a 256-bin histogram
		strconv.FormatFloat(cfg.Species[0].OffsetPercent, 'g', -1, 64),
		strconv.FormatFloat(cfg.Species[1].OffsetPercent, 'g', -1, 64),
		strconv.FormatFloat(cfg.Species[0].ManualThreshold, 'g', -1, 64),
		strconv.FormatFloat(cfg.Species[1].ManualThreshold, 'g', -1, 64),
		strconv.Itoa(cfg.Segmentation.OpenIterations),
		strconv.Itoa(cfg.Segmentation.CloseIterations),
		fmtBool(cfg.Segmentation.FillHoles),
		cfg.Unify.Policy,
		strconv.Itoa(cfg.Unify.DilateIterations),
		strconv.Itoa(cfg.Unify.MinParticlePx),
		fmtBool(cfg.Unify.ExcludeEdges),
		cfg.Species[0].DiluteMode,
		cfg.Species[1].DiluteMode,
		strconv.Itoa(cfg.Measurement.RingPx),
		fmtBool(cfg.Measurement.SubtractBackground),
		r.Err,
	)
	return rec
}

// Replicate images share a filename stem; the trailing replicate counter is
// dropped to aggregate them.
var (
	replicateSuffix = regexp.MustCompile(`_[0-9]+_Composite_T0$`)
	compositeSuffix = regexp.MustCompile(`_Composite_T0$`)
)

// groupLabel maps an image basename to its replicate-group label.
func groupLabel(base string) string {
	s := replicateSuffix.ReplaceAllString(base, "_Composite_T0")
	return compositeSuffix.ReplaceAllString(s, "")
}

// groupMeanRecords aggregates K1 and K2 over replicate groups, one record
// per group with at least one finite coefficient.
func groupMeanRecords(rows []Row) [][]string {
	groups := make(map[string][]Row)
	for _, r := range rows {
		lab := groupLabel(r.Filename)
		groups[lab] = append(groups[lab], r)
	}

	labels := make([]string, 0, len(groups))
	for lab := range groups {
		labels = append(labels, lab)
	}
	sort.Strings(labels)

	var recs [][]string
	for _, lab := range labels {
		var k1s, k2s []float64
		for _, r := range groups[lab] {
			if !math.IsNaN(r.K1) {
				k1s = append(k1s, r.K1)
			}
			if !math.IsNaN(r.K2) {
				k2s = append(k2s, r.K2)
			}
		}
		if len(k1s) == 0 && len(k2s) == 0 {
			continue
		}

		rec := make([]string, len(columns))
		rec[0] = "GROUP_MEAN:" + lab
		if len(k1s) > 0 {
			rec[9] = fmtFloat(stat.Mean(k1s, nil))
		}
		if len(k2s) > 0 {
			rec[10] = fmtFloat(stat.Mean(k2s, nil))
		}
		recs = append(recs, rec)
	}
	return recs
}

// openOutputFile creates the output file, falling back to a uniquely named
// sibling when the target already exists or cannot be created (e.g. held
// open by an external reader). The fallback is local and silent; an output
// conflict never fails the batch.
func openOutputFile(path string) (*os.File, string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		return f, path, nil
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 0; i < 3; i++ {
		alt := fmt.Sprintf("%s_%d%s", stem, time.Now().UnixMilli(), ext)
		f, err = os.OpenFile(alt, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, alt, nil
		}
		time.Sleep(time.Millisecond)
	}
	return nil, "", fmt.Errorf("failed to create output file %s: %v", path, err)
}

// WriteTable serializes all rows plus configuration provenance to CSV in one
// flush at the end of the batch. Returns the path actually written, which
// may differ from the requested one under a destination conflict.
func WriteTable(rows []Row, cfg *config.Config, path string) (string, error) {
	f, actual, err := openOutputFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return actual, fmt.Errorf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(record(r, cfg)); err != nil {
			return actual, fmt.Errorf("failed to write row for %s: %v", r.Filename, err)
		}
	}
	if cfg.Output.GroupMeans {
		for _, rec := range groupMeanRecords(rows) {
			if err := w.Write(rec); err != nil {
				return actual, fmt.Errorf("failed to write group row: %v", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return actual, fmt.Errorf("failed to flush output table: %v", err)
	}
	return actual, nil
}
