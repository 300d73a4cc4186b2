package imaging

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

const DefaultComponents = 3

// Reduction holds PCA scores shaped (time, z, components).
type Reduction struct {
	TimeFrames        int
	ZSlices           int
	Components        int
	Data              []float64
	ExplainedVariance []float64
}

func (r Reduction) At(t, z, k int) float64 {
	return r.Data[(t*r.ZSlices+z)*r.Components+k]
}

func (r Reduction) Rows() [][][]float64 {
	out := make([][][]float64, r.TimeFrames)
	for t := range out {
		out[t] = make([][]float64, r.ZSlices)
		for z := range out[t] {
			off := (t*r.ZSlices + z) * r.Components
			out[t][z] = r.Data[off : off+r.Components : off+r.Components]
		}
	}
	return out
}

// Reduce projects every (time, z) sample, flattened over channel, height and
// width, onto its first nComponents principal directions. nComponents is
// clamped to the feature count. Score columns beyond the directions supported
// by the sample count are zero.
func Reduce(c *Canonical, nComponents int) (red Reduction, err error) {
	if nComponents <= 0 {
		return Reduction{}, domain.NewError(domain.ErrInvalidInput, "n_components must be positive, got %d", nComponents)
	}
	shape := c.Shape()
	samples := shape[AxisTime] * shape[AxisZ]
	features := shape[AxisChannel] * shape[AxisHeight] * shape[AxisWidth]
	k := min(nComponents, features)

	if floats.HasNaN(c.data) || hasInf(c.data) {
		return Reduction{}, domain.WrapError(domain.ErrAnalysisFailure, "pca", errors.New("input contains non-finite values"))
	}

	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrAnalysisFailure, "pca", fmt.Errorf("%v", r))
		}
	}()

	x := mat.NewDense(samples, features, c.data)
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return Reduction{}, domain.WrapError(domain.ErrAnalysisFailure, "pca", errors.New("singular value decomposition failed"))
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)
	if samples < 2 {
		// a single observation carries no variance
		for i := range vars {
			vars[i] = 0
		}
	}

	_, available := vecs.Dims()
	used := min(k, available)
	dirs := mat.DenseCopyOf(vecs.Slice(0, features, 0, used))
	fixSigns(dirs)

	centered := mat.DenseCopyOf(x)
	col := make([]float64, samples)
	for j := 0; j < features; j++ {
		mat.Col(col, j, centered)
		floats.AddConst(-stat.Mean(col, nil), col)
		centered.SetCol(j, col)
	}
	var scores mat.Dense
	scores.Mul(centered, dirs)

	red = Reduction{
		TimeFrames:        shape[AxisTime],
		ZSlices:           shape[AxisZ],
		Components:        k,
		Data:              make([]float64, samples*k),
		ExplainedVariance: make([]float64, k),
	}
	for i := 0; i < samples; i++ {
		for j := 0; j < used; j++ {
			red.Data[i*k+j] = scores.At(i, j)
		}
	}
	copy(red.ExplainedVariance, vars[:used])
	return red, nil
}

// fixSigns flips each direction so its largest-magnitude loading is positive.
func fixSigns(dirs *mat.Dense) {
	rows, cols := dirs.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, dirs)
		idx := 0
		for i, v := range col {
			if math.Abs(v) > math.Abs(col[idx]) {
				idx = i
			}
		}
		if col[idx] < 0 {
			floats.Scale(-1, col)
			dirs.SetCol(j, col)
		}
	}
}

func hasInf(s []float64) bool {
	for _, v := range s {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
