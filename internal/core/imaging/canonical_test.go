package imaging

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

func ramp(dtype DType, shape ...int) Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i % 256)
	}
	return Array{DType: dtype, Shape: shape, Data: data}
}

func noise(dtype DType, seed uint64, shape ...int) Array {
	arr := ramp(dtype, shape...)
	rng := rand.New(rand.NewPCG(seed, seed))
	for i := range arr.Data {
		arr.Data[i] = float64(rng.IntN(256))
	}
	return arr
}

func mustCanonical(t *testing.T, arr Array) *Canonical {
	t.Helper()
	c, err := Canonicalize(arr)
	if err != nil {
		t.Fatalf("canonicalize %v: %v", arr.Shape, err)
	}
	return c
}

func TestCanonicalizePadsLeadingAxes(t *testing.T) {
	cases := []struct {
		shape []int
		want  [CanonicalRank]int
	}{
		{shape: []int{100, 100}, want: [CanonicalRank]int{1, 1, 1, 100, 100}},
		{shape: []int{3, 64, 32}, want: [CanonicalRank]int{1, 1, 3, 64, 32}},
		{shape: []int{2, 3, 8, 8}, want: [CanonicalRank]int{1, 2, 3, 8, 8}},
		{shape: []int{2, 3, 4, 5, 6}, want: [CanonicalRank]int{2, 3, 4, 5, 6}},
	}
	for _, tc := range cases {
		c := mustCanonical(t, ramp(Uint8, tc.shape...))
		if got := c.Shape(); got != tc.want {
			t.Fatalf("shape %v: expected %v, got %v", tc.shape, tc.want, got)
		}
		if c.Len() != len(ramp(Uint8, tc.shape...).Data) {
			t.Fatalf("shape %v: element count changed", tc.shape)
		}
	}
}

func TestCanonicalizeRejectsRank(t *testing.T) {
	for _, shape := range [][]int{{10}, {1, 1, 1, 1, 2, 2}} {
		_, err := Canonicalize(ramp(Uint8, shape...))
		if !domain.IsKind(err, domain.ErrInvalidDimensionality) {
			t.Fatalf("shape %v: expected invalid dimensionality, got %v", shape, err)
		}
	}
}

func TestCanonicalizeRejectsBadInput(t *testing.T) {
	arr := ramp(Uint8, 4, 4)
	arr.Data = arr.Data[:15]
	if _, err := Canonicalize(arr); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short buffer, got %v", err)
	}

	arr = ramp(DTypeInvalid, 4, 4)
	if _, err := Canonicalize(arr); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for dtype, got %v", err)
	}

	arr = Array{DType: Uint8, Shape: []int{0, 4}}
	if _, err := Canonicalize(arr); !domain.IsKind(err, domain.ErrInvalidDimensionality) {
		t.Fatalf("expected invalid dimensionality for empty axis, got %v", err)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	c := mustCanonical(t, ramp(Uint16, 3, 8, 8))
	full, err := c.Array(0)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	again := mustCanonical(t, full)
	if again.Shape() != c.Shape() {
		t.Fatalf("expected %v, got %v", c.Shape(), again.Shape())
	}
	if !slices.Equal(again.data, c.data) {
		t.Fatalf("data changed on second canonicalization")
	}
}

func TestCanonicalArrayDropRecoversOriginal(t *testing.T) {
	orig := ramp(Float32, 6, 7)
	c := mustCanonical(t, orig)
	arr, err := c.Array(3)
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if !slices.Equal(arr.Shape, orig.Shape) || arr.DType != orig.DType {
		t.Fatalf("expected %v %s, got %v %s", orig.Shape, orig.DType, arr.Shape, arr.DType)
	}

	c = mustCanonical(t, ramp(Uint8, 2, 3, 4))
	if _, err := c.Array(3); !domain.IsKind(err, domain.ErrInvalidDimensionality) {
		t.Fatalf("expected dropping a non-singleton axis to fail, got %v", err)
	}
}

func TestDescribeReportsCanonicalShape(t *testing.T) {
	c := mustCanonical(t, ramp(Uint16, 2, 3, 4, 10, 12))
	meta := Describe(c)
	if !slices.Equal(meta.Dimensions, []int{2, 3, 4, 10, 12}) {
		t.Fatalf("unexpected dimensions %v", meta.Dimensions)
	}
	want := domain.ShapeDescription{TimeFrames: 2, ZSlices: 3, Channels: 4, Height: 10, Width: 12}
	if meta.ShapeDescription != want {
		t.Fatalf("expected %+v, got %+v", want, meta.ShapeDescription)
	}
	if meta.DType != "uint16" {
		t.Fatalf("expected uint16, got %s", meta.DType)
	}
	if meta.SizeBytes != 2*3*4*10*12*2 {
		t.Fatalf("unexpected size %d", meta.SizeBytes)
	}
}

func TestParseDTypeRoundTrip(t *testing.T) {
	for d := Uint8; d <= Float64; d++ {
		got, ok := ParseDType(d.String())
		if !ok || got != d {
			t.Fatalf("%s: got %s ok=%v", d, got, ok)
		}
	}
	if _, ok := ParseDType("complex128"); ok {
		t.Fatalf("expected complex128 to be rejected")
	}
}
