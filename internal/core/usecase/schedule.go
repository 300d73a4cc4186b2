package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
	"github.com/kirillkom/hdimage/internal/core/ports"
)

type ScheduleAnalysisUseCase struct {
	images   ports.ImageRepository
	analyses ports.AnalysisRepository
	queue    ports.MessageQueue
}

func NewScheduleAnalysisUseCase(
	images ports.ImageRepository,
	analyses ports.AnalysisRepository,
	queue ports.MessageQueue,
) *ScheduleAnalysisUseCase {
	return &ScheduleAnalysisUseCase{
		images:   images,
		analyses: analyses,
		queue:    queue,
	}
}

// Schedule records a queued job for an existing image and publishes it to
// the workers. A job whose event cannot be published is marked failed.
func (uc *ScheduleAnalysisUseCase) Schedule(ctx context.Context, imageID string, req domain.AnalysisRequest) (*domain.AnalysisJob, error) {
	req, err := normalizeAnalysisRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := uc.images.GetByID(ctx, imageID); err != nil {
		return nil, fmt.Errorf("fetch image by id: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.AnalysisJob{
		ID:          uuid.NewString(),
		ImageID:     imageID,
		Type:        req.Type,
		NComponents: req.NComponents,
		Status:      domain.AnalysisQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.analyses.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create analysis job: %w", err)
	}

	if err := uc.queue.PublishAnalysisRequested(ctx, job.ID); err != nil {
		if markErr := uc.analyses.UpdateStatus(context.WithoutCancel(ctx), job.ID, domain.AnalysisFailed, "enqueue failed"); markErr != nil {
			slog.Warn("analysis_mark_failed_error", "job_id", job.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish analysis event: %w", err)
	}
	return job, nil
}

func (uc *ScheduleAnalysisUseCase) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	job, err := uc.analyses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis by id: %w", err)
	}
	return job, nil
}

func normalizeAnalysisRequest(req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	typ, ok := domain.ParseAnalysisType(string(req.Type))
	if !ok {
		return req, domain.NewError(domain.ErrUnsupportedMethod, "unsupported analysis type %q", req.Type)
	}
	req.Type = typ

	switch typ {
	case domain.AnalysisPCA:
		if req.NComponents < 0 {
			return req, domain.NewError(domain.ErrInvalidInput, "n_components must be positive, got %d", req.NComponents)
		}
		if req.NComponents == 0 {
			req.NComponents = imaging.DefaultComponents
		}
	default:
		req.NComponents = 0
	}
	return req, nil
}
