package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(ctx context.Context, job *domain.AnalysisJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_results (id, image_id, analysis_type, n_components, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, job.ID, job.ImageID, string(job.Type), job.NComponents, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, image_id, analysis_type, n_components, status, result, error_message, created_at, updated_at
FROM analysis_results
WHERE id = $1
`, id)

	var job domain.AnalysisJob
	var analysisType, status string
	var result []byte
	err := row.Scan(
		&job.ID, &job.ImageID, &analysisType, &job.NComponents, &status,
		&result, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}

	job.Type = domain.AnalysisType(analysisType)
	job.Status = domain.AnalysisStatus(status)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return &job, nil
}

func (r *AnalysisRepository) UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE analysis_results
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	return requireAffected(res, id)
}

// SaveResult stores the result and moves the job to ready.
func (r *AnalysisRepository) SaveResult(ctx context.Context, id string, result json.RawMessage) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE analysis_results
SET status = $2, result = $3, error_message = '', updated_at = $4
WHERE id = $1
`, id, string(domain.AnalysisReady), []byte(result), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrAnalysisNotFound, "update analysis", fmt.Errorf("id=%s", id))
	}
	return nil
}
