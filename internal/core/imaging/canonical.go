package imaging

import (
	"github.com/kirillkom/hdimage/internal/core/domain"
)

const (
	AxisTime = iota
	AxisZ
	AxisChannel
	AxisHeight
	AxisWidth

	CanonicalRank = 5
	minRank       = 2
)

// Array is a dense decoded array of rank 2..5 in row-major order.
type Array struct {
	DType DType
	Shape []int
	Data  []float64
}

func (a Array) Rank() int { return len(a.Shape) }

// Canonical is an immutable 5-D array with axes (time, z, channel, height, width).
type Canonical struct {
	dtype DType
	shape [CanonicalRank]int
	data  []float64
}

// Canonicalize left-pads a rank 2..5 array with singleton axes until it has
// rank 5. The returned value shares the input's buffer.
func Canonicalize(a Array) (*Canonical, error) {
	rank := a.Rank()
	if rank < minRank || rank > CanonicalRank {
		return nil, domain.NewError(domain.ErrInvalidDimensionality,
			"image must have between %d and %d dimensions, got %d", minRank, CanonicalRank, rank)
	}
	if !a.DType.Valid() {
		return nil, domain.NewError(domain.ErrInvalidInput, "unsupported element type %s", a.DType)
	}

	var shape [CanonicalRank]int
	for i := range shape {
		shape[i] = 1
	}
	pad := CanonicalRank - rank
	count := 1
	for i, n := range a.Shape {
		if n <= 0 {
			return nil, domain.NewError(domain.ErrInvalidDimensionality, "axis %d has length %d", i, n)
		}
		shape[pad+i] = n
		count *= n
	}
	if count != len(a.Data) {
		return nil, domain.NewError(domain.ErrInvalidInput,
			"shape %v holds %d elements but buffer has %d", a.Shape, count, len(a.Data))
	}

	return &Canonical{dtype: a.DType, shape: shape, data: a.Data}, nil
}

func (c *Canonical) DType() DType { return c.dtype }

func (c *Canonical) Shape() [CanonicalRank]int { return c.shape }

// Len is the total element count.
func (c *Canonical) Len() int { return len(c.data) }

func (c *Canonical) SizeBytes() int64 {
	return int64(len(c.data)) * int64(c.dtype.Size())
}

func (c *Canonical) At(t, z, ch, y, x int) float64 {
	return c.data[c.planeOffset(t, z, ch)+y*c.shape[AxisWidth]+x]
}

// Array returns the canonical array with the given number of leading axes
// dropped. Only singleton axes can be dropped.
func (c *Canonical) Array(drop int) (Array, error) {
	if drop < 0 || drop > CanonicalRank-minRank {
		return Array{}, domain.NewError(domain.ErrInvalidDimensionality, "cannot drop %d axes", drop)
	}
	for i := 0; i < drop; i++ {
		if c.shape[i] != 1 {
			return Array{}, domain.NewError(domain.ErrInvalidDimensionality, "axis %d has length %d", i, c.shape[i])
		}
	}
	shape := make([]int, 0, CanonicalRank-drop)
	shape = append(shape, c.shape[drop:]...)
	return Array{DType: c.dtype, Shape: shape, Data: c.data}, nil
}

func (c *Canonical) planeSize() int {
	return c.shape[AxisHeight] * c.shape[AxisWidth]
}

func (c *Canonical) planeOffset(t, z, ch int) int {
	return ((t*c.shape[AxisZ]+z)*c.shape[AxisChannel] + ch) * c.planeSize()
}

func (c *Canonical) plane(t, z, ch int) []float64 {
	off := c.planeOffset(t, z, ch)
	return c.data[off : off+c.planeSize()]
}
