// Package imaging normalizes decoded image arrays into the canonical
// (time, z, channel, height, width) layout and runs the slice, statistics,
// reduction and segmentation operations over it.
package imaging

import "math"

// DType is the element type of a decoded image. Samples are held as float64
// internally; every supported type converts to float64 without loss.
type DType int

const (
	DTypeInvalid DType = iota
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Size is the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (d DType) Valid() bool {
	return d > DTypeInvalid && d <= Float64
}

func (d DType) IsInteger() bool {
	return d >= Uint8 && d <= Int32
}

// Range reports the representable value range of the type.
func (d DType) Range() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	default:
		return -math.MaxFloat64, math.MaxFloat64
	}
}

// ParseDType is the inverse of String.
func ParseDType(name string) (DType, bool) {
	for d := Uint8; d <= Float64; d++ {
		if d.String() == name {
			return d, true
		}
	}
	return DTypeInvalid, false
}
