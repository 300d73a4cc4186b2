package ports

import (
	"context"
	"encoding/json"
	"io"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
)

// ImageRepository persists image records and their metadata.
type ImageRepository interface {
	Create(ctx context.Context, img *domain.Image) error
	GetByID(ctx context.Context, id string) (*domain.Image, error)
}

// AnalysisRepository persists background analysis jobs and results.
type AnalysisRepository interface {
	Create(ctx context.Context, job *domain.AnalysisJob) error
	GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result json.RawMessage) error
}

// ObjectStorage stores uploaded image files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes analysis requests.
type MessageQueue interface {
	PublishAnalysisRequested(ctx context.Context, jobID string) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// ImageDecoder turns a stored file into a dense array.
type ImageDecoder interface {
	imaging.Decoder
}
