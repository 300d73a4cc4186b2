package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/ports"
)

// JobObserver receives per-job measurements from the worker. Outcome is empty
// for successful jobs and the domain error kind otherwise.
type JobObserver interface {
	ObserveQueueLag(lag time.Duration)
	ObserveJob(analysisType string, duration time.Duration, resultBytes int, outcome string)
}

type ProcessAnalysisUseCase struct {
	repo     ports.AnalysisRepository
	analyzer ports.ImageAnalyzer
	observer JobObserver
}

func NewProcessAnalysisUseCase(repo ports.AnalysisRepository, analyzer ports.ImageAnalyzer) *ProcessAnalysisUseCase {
	return &ProcessAnalysisUseCase{
		repo:     repo,
		analyzer: analyzer,
	}
}

func (uc *ProcessAnalysisUseCase) WithObserver(o JobObserver) *ProcessAnalysisUseCase {
	uc.observer = o
	return uc
}

// ProcessByID runs a queued job. Jobs already in a terminal state are left
// untouched so redelivered events are harmless.
func (uc *ProcessAnalysisUseCase) ProcessByID(ctx context.Context, jobID string) error {
	start := time.Now()
	job, resultBytes, err := uc.process(ctx, jobID)
	if uc.observer != nil && (job != nil || err != nil) {
		analysisType := "unknown"
		if job != nil {
			analysisType = string(job.Type)
		}
		uc.observer.ObserveJob(analysisType, time.Since(start), resultBytes, domain.KindOf(err))
	}
	return err
}

// process returns a nil job when the job could not be fetched or was already
// terminal.
func (uc *ProcessAnalysisUseCase) process(ctx context.Context, jobID string) (*domain.AnalysisJob, int, error) {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch analysis by id: %w", err)
	}
	if job.Status == domain.AnalysisReady || job.Status == domain.AnalysisFailed {
		return nil, 0, nil
	}
	if uc.observer != nil && !job.CreatedAt.IsZero() {
		uc.observer.ObserveQueueLag(time.Since(job.CreatedAt))
	}

	if err := uc.markStatus(ctx, jobID, domain.AnalysisRunning, ""); err != nil {
		return job, 0, fmt.Errorf("set status=running: %w", err)
	}

	result, err := uc.run(ctx, job)
	if err != nil {
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return job, 0, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return job, 0, err
	}

	if err := uc.repo.SaveResult(ctx, jobID, result); err != nil {
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return job, 0, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return job, 0, fmt.Errorf("save analysis result: %w", err)
	}
	return job, len(result), nil
}

func (uc *ProcessAnalysisUseCase) run(ctx context.Context, job *domain.AnalysisJob) (json.RawMessage, error) {
	var (
		out any
		err error
	)
	switch job.Type {
	case domain.AnalysisPCA:
		out, err = uc.analyzer.Reduce(ctx, job.ImageID, job.NComponents)
	case domain.AnalysisStatistics:
		out, err = uc.analyzer.Statistics(ctx, job.ImageID)
	default:
		return nil, domain.NewError(domain.ErrUnsupportedMethod, "unsupported analysis type %q", job.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("run %s analysis: %w", job.Type, err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAnalysisFailure, "encode analysis result", err)
	}
	return raw, nil
}

func (uc *ProcessAnalysisUseCase) markStatus(ctx context.Context, jobID string, status domain.AnalysisStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, jobID, status, errMessage)
}

// markFailed records the failure kind with a message safe to serve to
// callers; the full cause is only logged. It uses a context that outlives a
// job timeout so the terminal state is still written.
func (uc *ProcessAnalysisUseCase) markFailed(ctx context.Context, jobID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	kind := domain.KindOf(processErr)
	slog.Warn("analysis_job_marked_failed", "job_id", jobID, "kind", kind, "error", processErr)
	msg := fmt.Sprintf("%s: %s", kind, domain.PublicMessage(processErr))
	return uc.markStatus(context.WithoutCancel(ctx), jobID, domain.AnalysisFailed, msg)
}
