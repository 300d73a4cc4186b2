package imaging

import "github.com/kirillkom/hdimage/internal/core/domain"

// Plane is an independent copy of one (height x width) slice.
type Plane struct {
	DType  DType
	Height int
	Width  int
	Data   []float64
}

func (p Plane) At(y, x int) float64 { return p.Data[y*p.Width+x] }

// Rows returns the plane as nested rows for serialization.
func (p Plane) Rows() [][]float64 {
	rows := make([][]float64, p.Height)
	for y := range rows {
		rows[y] = p.Data[y*p.Width : (y+1)*p.Width : (y+1)*p.Width]
	}
	return rows
}

// ValidateIndex checks a (time, z, channel) triple against the canonical shape.
func ValidateIndex(c *Canonical, idx domain.SliceIndex) error {
	shape := c.Shape()
	if idx.Time < 0 || idx.Z < 0 || idx.Channel < 0 {
		return domain.NewError(domain.ErrInvalidInput,
			"slice indices must be non-negative, got time=%d z=%d channel=%d", idx.Time, idx.Z, idx.Channel)
	}
	if idx.Time >= shape[AxisTime] {
		return domain.NewError(domain.ErrIndexOutOfRange,
			"time index %d out of bounds (max: %d)", idx.Time, shape[AxisTime]-1)
	}
	if idx.Z >= shape[AxisZ] {
		return domain.NewError(domain.ErrIndexOutOfRange,
			"z index %d out of bounds (max: %d)", idx.Z, shape[AxisZ]-1)
	}
	if idx.Channel >= shape[AxisChannel] {
		return domain.NewError(domain.ErrIndexOutOfRange,
			"channel index %d out of bounds (max: %d)", idx.Channel, shape[AxisChannel]-1)
	}
	return nil
}

// Slice copies the plane at idx out of the canonical array.
func Slice(c *Canonical, idx domain.SliceIndex) (Plane, error) {
	if err := ValidateIndex(c, idx); err != nil {
		return Plane{}, err
	}
	src := c.plane(idx.Time, idx.Z, idx.Channel)
	data := make([]float64, len(src))
	copy(data, src)

	shape := c.Shape()
	return Plane{
		DType:  c.DType(),
		Height: shape[AxisHeight],
		Width:  shape[AxisWidth],
		Data:   data,
	}, nil
}
