package domain

import "time"

// ShapeDescription names the canonical axis lengths.
type ShapeDescription struct {
	TimeFrames int `json:"time_frames"`
	ZSlices    int `json:"z_slices"`
	Channels   int `json:"channels"`
	Height     int `json:"height"`
	Width      int `json:"width"`
}

// ImageMetadata is a snapshot derived from a canonical array. It is recomputed
// on every load and never updated in place.
type ImageMetadata struct {
	Dimensions       []int            `json:"dimensions"`
	DType            string           `json:"dtype"`
	SizeBytes        int64            `json:"size_bytes"`
	ShapeDescription ShapeDescription `json:"shape_description"`
}

type Image struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`
	StoragePath string        `json:"storage_path"`
	Metadata    ImageMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SliceIndex selects one (height x width) plane.
type SliceIndex struct {
	Time    int `json:"time"`
	Z       int `json:"z"`
	Channel int `json:"channel"`
}
