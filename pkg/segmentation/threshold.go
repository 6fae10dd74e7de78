package segmentation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"partitionk/internal/models"
	"partitionk/pkg/config"
)

// histogramBins is the bin count every automatic method works on. Planes of
// arbitrary bit depth are rebinned to this resolution over their own
// min..max range, so thresholds behave as if computed on an 8-bit image.
const histogramBins = 256

// histogram256 bins the finite plane values into 256 equal-width bins over
// [min, max]. Returns the counts, the range, and the bin width.
func histogram256(p *models.Plane) (hist []float64, min, binWidth float64) {
	var max float64
	first := true
	for _, v := range p.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	hist = make([]float64, histogramBins)
	if first || max <= min {
		return hist, min, 0
	}

	binWidth = (max - min) / histogramBins
	for _, v := range p.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bin := int((v - min) / binWidth)
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		hist[bin]++
	}
	return hist, min, binWidth
}

// ComputeThreshold computes a threshold intensity for the plane using the
// named automatic method. The returned value lives in plane units (the
// center of the chosen histogram bin). A flat plane thresholds at its own
// constant value.
func ComputeThreshold(p *models.Plane, method string) (float64, error) {
	hist, min, binWidth := histogram256(p)
	if binWidth == 0 {
		return min, nil
	}

	var bin int
	switch method {
	case config.MethodOtsu:
		bin = otsuBin(hist)
	case config.MethodMean:
		bin = meanBin(hist)
	case config.MethodMoments:
		bin = momentsBin(hist)
	case config.MethodTriangle:
		bin = triangleBin(hist)
	case config.MethodIsoData:
		bin = isoDataBin(hist)
	case config.MethodMaxEntropy:
		bin = maxEntropyBin(hist)
	case config.MethodPercentile:
		bin = percentileBin(hist, 0.5)
	default:
		return 0, fmt.Errorf("unknown threshold method %q", method)
	}

	return min + (float64(bin)+0.5)*binWidth, nil
}

// otsuBin maximizes the between-class variance over all split points.
func otsuBin(hist []float64) int {
	total := 0.0
	weightedTotal := 0.0
	for i, h := range hist {
		total += h
		weightedTotal += float64(i) * h
	}

	best, bestVariance := 0, -1.0
	cumCount, cumSum := 0.0, 0.0
	for i := 0; i < len(hist)-1; i++ {
		cumCount += hist[i]
		cumSum += float64(i) * hist[i]

		wb := cumCount
		wf := total - cumCount
		if wb == 0 || wf == 0 {
			continue
		}
		mb := cumSum / wb
		mf := (weightedTotal - cumSum) / wf
		variance := wb * wf * (mb - mf) * (mb - mf)
		if variance > bestVariance {
			bestVariance = variance
			best = i
		}
	}
	return best
}

// meanBin thresholds at the intensity-weighted mean of the histogram.
func meanBin(hist []float64) int {
	centers := make([]float64, len(hist))
	for i := range centers {
		centers[i] = float64(i)
	}
	return int(stat.Mean(centers, hist))
}

// momentsBin implements Tsai's moment-preserving threshold: the split point
// that makes a two-level image preserve the first three gray-level moments.
func momentsBin(hist []float64) int {
	total := 0.0
	for _, h := range hist {
		total += h
	}

	var m1, m2, m3 float64
	for i, h := range hist {
		p := h / total
		x := float64(i)
		m1 += x * p
		m2 += x * x * p
		m3 += x * x * x * p
	}

	cd := m2 - m1*m1
	if cd == 0 {
		return meanBin(hist)
	}
	c0 := (m1*m3 - m2*m2) / cd
	c1 := (m1*m2 - m3) / cd
	disc := c1*c1 - 4*c0
	if disc < 0 {
		return meanBin(hist)
	}
	z0 := 0.5 * (-c1 - math.Sqrt(disc))
	z1 := 0.5 * (-c1 + math.Sqrt(disc))
	if z1 == z0 {
		return meanBin(hist)
	}

	// Fraction of pixels assigned to the lower level
	pd := (z1 - m1) / (z1 - z0)
	return percentileBin(hist, pd)
}

// triangleBin finds the histogram point with maximum distance to the line
// from the peak to the far tail, the geometric construction of Zack's
// triangle method.
func triangleBin(hist []float64) int {
	first, last, peak := -1, -1, 0
	for i, h := range hist {
		if h > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
		if h > hist[peak] {
			peak = i
		}
	}
	if first < 0 || first == last {
		return peak
	}

	// Work on the longer tail; flip so the tail is to the left of the peak
	flipped := false
	h := hist
	if peak-first < last-peak {
		flipped = true
		h = make([]float64, len(hist))
		for i := range hist {
			h[i] = hist[len(hist)-1-i]
		}
		first, peak = len(hist)-1-last, len(hist)-1-peak
	}

	nx := h[peak]
	ny := float64(first - peak)
	d := math.Hypot(nx, ny)
	nx /= d
	nyf := ny / d
	dist0 := nx*float64(first) + nyf*h[first]

	split, splitDist := first, 0.0
	for i := first + 1; i <= peak; i++ {
		dist := nx*float64(i) + nyf*h[i] - dist0
		if dist > splitDist {
			splitDist = dist
			split = i
		}
	}
	if split > first {
		split--
	}
	if flipped {
		split = len(hist) - 1 - split
	}
	return split
}

// isoDataBin is the Ridler-Calvard iterative intermeans threshold: repeat
// t = (mean below t + mean above t) / 2 until it stabilizes.
func isoDataBin(hist []float64) int {
	t := meanBin(hist)
	for iter := 0; iter < 100; iter++ {
		var loSum, loCount, hiSum, hiCount float64
		for i, h := range hist {
			if i <= t {
				loSum += float64(i) * h
				loCount += h
			} else {
				hiSum += float64(i) * h
				hiCount += h
			}
		}
		if loCount == 0 || hiCount == 0 {
			break
		}
		next := int((loSum/loCount + hiSum/hiCount) / 2)
		if next == t {
			break
		}
		t = next
	}
	return t
}

// maxEntropyBin is Kapur's method: choose the split maximizing the summed
// entropies of the foreground and background distributions.
func maxEntropyBin(hist []float64) int {
	total := 0.0
	for _, h := range hist {
		total += h
	}

	best, bestEntropy := 0, math.Inf(-1)
	cum := 0.0
	for t := 0; t < len(hist)-1; t++ {
		cum += hist[t]
		if cum == 0 || cum == total {
			continue
		}

		var hb, hw float64
		for i := 0; i <= t; i++ {
			if hist[i] > 0 {
				p := hist[i] / cum
				hb -= p * math.Log(p)
			}
		}
		rest := total - cum
		for i := t + 1; i < len(hist); i++ {
			if hist[i] > 0 {
				p := hist[i] / rest
				hw -= p * math.Log(p)
			}
		}
		if hb+hw > bestEntropy {
			bestEntropy = hb + hw
			best = t
		}
	}
	return best
}

// percentileBin returns the first bin at which the cumulative fraction of
// pixels reaches frac.
func percentileBin(hist []float64, frac float64) int {
	total := 0.0
	for _, h := range hist {
		total += h
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	cum := 0.0
	for i, h := range hist {
		cum += h
		if cum >= frac*total {
			return i
		}
	}
	return len(hist) - 1
}
