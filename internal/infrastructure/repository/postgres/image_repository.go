package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) Create(ctx context.Context, img *domain.Image) error {
	metaJSON, err := json.Marshal(img.Metadata)
	if err != nil {
		return fmt.Errorf("marshal image metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO images (id, filename, storage_path, image_metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, img.ID, img.Filename, img.StoragePath, metaJSON, img.CreatedAt, img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, image_metadata, created_at, updated_at
FROM images
WHERE id = $1
`, id)

	var img domain.Image
	var metaRaw []byte
	err := row.Scan(&img.ID, &img.Filename, &img.StoragePath, &metaRaw, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrImageNotFound, "get image", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}

	if err := json.Unmarshal(metaRaw, &img.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal image metadata: %w", err)
	}
	return &img, nil
}
