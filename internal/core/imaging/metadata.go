package imaging

import "github.com/kirillkom/hdimage/internal/core/domain"

// Describe derives the metadata record for a canonical array.
func Describe(c *Canonical) domain.ImageMetadata {
	shape := c.Shape()
	return domain.ImageMetadata{
		Dimensions: shape[:],
		DType:      c.DType().String(),
		SizeBytes:  c.SizeBytes(),
		ShapeDescription: domain.ShapeDescription{
			TimeFrames: shape[AxisTime],
			ZSlices:    shape[AxisZ],
			Channels:   shape[AxisChannel],
			Height:     shape[AxisHeight],
			Width:      shape[AxisWidth],
		},
	}
}
