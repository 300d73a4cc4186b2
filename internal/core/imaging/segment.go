package imaging

import (
	"strings"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

type SegmentMethod string

const (
	MethodOtsu   SegmentMethod = "otsu"
	MethodKMeans SegmentMethod = "kmeans"
)

// ParseSegmentMethod accepts method names case-insensitively.
func ParseSegmentMethod(raw string) (SegmentMethod, error) {
	switch m := SegmentMethod(strings.ToLower(strings.TrimSpace(raw))); m {
	case MethodOtsu, MethodKMeans:
		return m, nil
	default:
		return "", domain.NewError(domain.ErrUnsupportedMethod, "unsupported segmentation method %q", raw)
	}
}

// Segmentation is a boolean mask (otsu) or a {0,1} label mask (kmeans) over
// one slice.
type Segmentation struct {
	Method    SegmentMethod
	Height    int
	Width     int
	Mask      []bool
	Labels    []int
	Threshold float64
	Centroids []float64
}

// Rows returns [][]bool for otsu and [][]int for kmeans.
func (s Segmentation) Rows() any {
	if s.Method == MethodKMeans {
		rows := make([][]int, s.Height)
		for y := range rows {
			rows[y] = s.Labels[y*s.Width : (y+1)*s.Width : (y+1)*s.Width]
		}
		return rows
	}
	rows := make([][]bool, s.Height)
	for y := range rows {
		rows[y] = s.Mask[y*s.Width : (y+1)*s.Width : (y+1)*s.Width]
	}
	return rows
}

// Segment thresholds or clusters the slice at idx.
func Segment(c *Canonical, idx domain.SliceIndex, method string) (Segmentation, error) {
	p, err := Slice(c, idx)
	if err != nil {
		return Segmentation{}, err
	}
	m, err := ParseSegmentMethod(method)
	if err != nil {
		return Segmentation{}, err
	}

	out := Segmentation{Method: m, Height: p.Height, Width: p.Width}
	switch m {
	case MethodOtsu:
		out.Mask, out.Threshold = otsuMask(p)
	case MethodKMeans:
		out.Labels, out.Centroids, err = kmeansLabels(p)
		if err != nil {
			return Segmentation{}, err
		}
	}
	return out, nil
}
