package ports

import (
	"context"
	"io"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
)

// ImageUploader is the inbound contract for image upload orchestration.
type ImageUploader interface {
	Upload(ctx context.Context, filename string, body io.Reader) (*domain.Image, error)
}

// ImageReader is the inbound read model for stored image records.
type ImageReader interface {
	GetByID(ctx context.Context, id string) (*domain.Image, error)
}

// ImageAnalyzer runs synchronous engine operations against a stored image.
type ImageAnalyzer interface {
	Slice(ctx context.Context, imageID string, idx domain.SliceIndex) (imaging.Plane, error)
	Statistics(ctx context.Context, imageID string) (imaging.Stats, error)
	Reduce(ctx context.Context, imageID string, nComponents int) (imaging.Reduction, error)
	Segment(ctx context.Context, imageID string, idx domain.SliceIndex, method string) (imaging.Segmentation, error)
}

// AnalysisScheduler queues background analyses and reads their state.
type AnalysisScheduler interface {
	Schedule(ctx context.Context, imageID string, req domain.AnalysisRequest) (*domain.AnalysisJob, error)
	GetAnalysis(ctx context.Context, id string) (*domain.AnalysisJob, error)
}

// AnalysisProcessor is the inbound contract for asynchronous analysis jobs.
type AnalysisProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}
