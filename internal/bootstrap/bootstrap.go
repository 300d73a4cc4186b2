package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/hdimage/internal/config"
	"github.com/kirillkom/hdimage/internal/core/ports"
	"github.com/kirillkom/hdimage/internal/core/usecase"
	"github.com/kirillkom/hdimage/internal/infrastructure/queue/nats"
	"github.com/kirillkom/hdimage/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/hdimage/internal/infrastructure/resilience"
	"github.com/kirillkom/hdimage/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/hdimage/internal/infrastructure/tiffio"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	UploadUC   ports.ImageUploader
	AnalysisUC *usecase.ImageAnalysisUseCase
	ScheduleUC ports.AnalysisScheduler
	ProcessUC  *usecase.ProcessAnalysisUseCase

	closeFn func()
}

// New wires every adapter. observer receives retry and breaker events from
// the resilience executor and may be nil.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	images := postgres.NewImageRepository(db)
	analyses := postgres.NewAnalysisRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resiliencePolicy(cfg))
	if observer != nil {
		executor = executor.WithObserver(observer)
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		HandlerTimeout:     time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second,
		Logger:             slog.Default(),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	decoder := tiffio.NewDecoder()
	if cfg.MaxImageElements > 0 {
		decoder.MaxElements = cfg.MaxImageElements
	}
	uploadUC := usecase.NewUploadImageUseCase(images, storage, decoder)
	analysisUC := usecase.NewImageAnalysisUseCase(images, storage, decoder)
	scheduleUC := usecase.NewScheduleAnalysisUseCase(images, analyses, queue)
	processUC := usecase.NewProcessAnalysisUseCase(analyses, analysisUC)

	return &App{
		Config: cfg,
		Queue:  queue,

		UploadUC:   uploadUC,
		AnalysisUC: analysisUC,
		ScheduleUC: scheduleUC,
		ProcessUC:  processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		InitialBackoff: time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
		Multiplier:     cfg.ResilienceRetryMultiplier,
		Breaker: resilience.BreakerPolicy{
			Enabled:          cfg.ResilienceBreakerEnabled,
			MinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
			FailureRatio:     cfg.ResilienceBreakerFailureRatio,
			OpenTimeout:      time.Duration(cfg.ResilienceBreakerOpenTimeoutSecs) * time.Second,
			HalfOpenMaxCalls: uint32(max(cfg.ResilienceBreakerHalfOpenMaxReq, 0)),
		},
	}
}
