package imaging

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	otsuBins = 256
	// maxIntegerBins bounds unit-width histograms; wider integer ranges use
	// otsuBins.
	maxIntegerBins = 1 << 16
)

// OtsuThreshold returns the histogram bin centre that maximizes the
// between-class variance of the values, using otsuBins equal bins over
// [min, max]. A constant input returns its value.
func OtsuThreshold(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return lo
	}

	dividers := floats.Span(make([]float64, otsuBins+1), lo, hi)
	centers := make([]float64, otsuBins)
	for i := range centers {
		centers[i] = (dividers[i] + dividers[i+1]) / 2
	}
	// the top divider must lie strictly above the maximum
	dividers[otsuBins] = math.Nextafter(hi, math.Inf(1))
	hist := stat.Histogram(nil, dividers, sorted, nil)
	return centers[otsuBest(hist, centers)]
}

// OtsuThresholdInteger is OtsuThreshold for integer-valued samples with one
// bin per integer in [min, max], so the threshold is always a sample value.
func OtsuThresholdInteger(values []float64) float64 {
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		return lo
	}
	n := int(hi-lo) + 1
	if n > maxIntegerBins {
		return OtsuThreshold(values)
	}

	hist := make([]float64, n)
	for _, v := range values {
		hist[int(v-lo)]++
	}
	centers := floats.Span(make([]float64, n), lo, hi)
	return centers[otsuBest(hist, centers)]
}

// otsuBest returns the last bin of the lower class for the split with the
// largest between-class variance. Ties keep the lowest bin.
func otsuBest(hist, centers []float64) int {
	bins := len(hist)

	// cumulative class weights and means, from below and from above
	weightLow := make([]float64, bins)
	meanLow := make([]float64, bins)
	var w, sum float64
	for i := 0; i < bins; i++ {
		w += hist[i]
		sum += hist[i] * centers[i]
		weightLow[i] = w
		if w > 0 {
			meanLow[i] = sum / w
		}
	}
	weightHigh := make([]float64, bins)
	meanHigh := make([]float64, bins)
	w, sum = 0, 0
	for i := bins - 1; i >= 0; i-- {
		w += hist[i]
		sum += hist[i] * centers[i]
		weightHigh[i] = w
		if w > 0 {
			meanHigh[i] = sum / w
		}
	}

	best, bestVariance := 0, -1.0
	for i := 0; i < bins-1; i++ {
		d := meanLow[i] - meanHigh[i+1]
		variance := weightLow[i] * weightHigh[i+1] * d * d
		if variance > bestVariance {
			best, bestVariance = i, variance
		}
	}
	return best
}

func otsuMask(p Plane) ([]bool, float64) {
	var threshold float64
	if p.DType.IsInteger() {
		threshold = OtsuThresholdInteger(p.Data)
	} else {
		threshold = OtsuThreshold(p.Data)
	}
	mask := make([]bool, len(p.Data))
	for i, v := range p.Data {
		mask[i] = v > threshold
	}
	return mask, threshold
}
