package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
	"github.com/kirillkom/hdimage/internal/core/ports"
)

var allowedExtensions = map[string]bool{".tif": true, ".tiff": true}

type UploadImageUseCase struct {
	repo    ports.ImageRepository
	storage ports.ObjectStorage
	decoder ports.ImageDecoder
}

func NewUploadImageUseCase(
	repo ports.ImageRepository,
	storage ports.ObjectStorage,
	decoder ports.ImageDecoder,
) *UploadImageUseCase {
	return &UploadImageUseCase{
		repo:    repo,
		storage: storage,
		decoder: decoder,
	}
}

// Upload stores the file, loads it once to derive metadata and records it.
// The stored file is removed again if any later step fails.
func (uc *UploadImageUseCase) Upload(ctx context.Context, filename string, body io.Reader) (*domain.Image, error) {
	if err := validateFilename(filename); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := id + ".tiff"
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	img, err := uc.register(ctx, id, filename, storageKey)
	if err != nil {
		// cleanup must survive a cancelled request
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil {
			slog.Warn("upload_cleanup_failed", "image_id", id, "storage_key", storageKey, "error", delErr)
		}
		return nil, err
	}
	return img, nil
}

func (uc *UploadImageUseCase) register(ctx context.Context, id, filename, storageKey string) (*domain.Image, error) {
	rc, err := uc.storage.Open(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("open stored upload: %w", err)
	}
	defer rc.Close()

	meta, err := imaging.NewSession(uc.decoder).Load(rc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	img := &domain.Image{
		ID:          id,
		Filename:    sanitizeFilename(filename),
		StoragePath: storageKey,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, img); err != nil {
		return nil, fmt.Errorf("create image metadata: %w", err)
	}
	return img, nil
}

func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("filename is required"))
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return domain.NewError(domain.ErrInvalidInput, "only TIFF files (.tif, .tiff) are supported, got %q", filepath.Ext(name))
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "image.tiff"
	}
	return base
}
