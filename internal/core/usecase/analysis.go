package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
	"github.com/kirillkom/hdimage/internal/core/ports"
)

// ImageAnalysisUseCase serves by-id engine operations. Every call loads the
// stored file into a fresh Session, so no processing state is shared.
type ImageAnalysisUseCase struct {
	repo    ports.ImageRepository
	storage ports.ObjectStorage
	decoder ports.ImageDecoder
}

func NewImageAnalysisUseCase(
	repo ports.ImageRepository,
	storage ports.ObjectStorage,
	decoder ports.ImageDecoder,
) *ImageAnalysisUseCase {
	return &ImageAnalysisUseCase{
		repo:    repo,
		storage: storage,
		decoder: decoder,
	}
}

func (uc *ImageAnalysisUseCase) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	img, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch image by id: %w", err)
	}
	return img, nil
}

func (uc *ImageAnalysisUseCase) Slice(ctx context.Context, imageID string, idx domain.SliceIndex) (imaging.Plane, error) {
	s, err := uc.session(ctx, imageID)
	if err != nil {
		return imaging.Plane{}, err
	}
	return s.Slice(idx)
}

func (uc *ImageAnalysisUseCase) Statistics(ctx context.Context, imageID string) (imaging.Stats, error) {
	s, err := uc.session(ctx, imageID)
	if err != nil {
		return imaging.Stats{}, err
	}
	return s.Statistics()
}

func (uc *ImageAnalysisUseCase) Reduce(ctx context.Context, imageID string, nComponents int) (imaging.Reduction, error) {
	if nComponents <= 0 {
		return imaging.Reduction{}, domain.NewError(domain.ErrInvalidInput, "n_components must be positive, got %d", nComponents)
	}
	s, err := uc.session(ctx, imageID)
	if err != nil {
		return imaging.Reduction{}, err
	}
	return s.Reduce(nComponents)
}

func (uc *ImageAnalysisUseCase) Segment(ctx context.Context, imageID string, idx domain.SliceIndex, method string) (imaging.Segmentation, error) {
	s, err := uc.session(ctx, imageID)
	if err != nil {
		return imaging.Segmentation{}, err
	}
	return s.Segment(idx, method)
}

func (uc *ImageAnalysisUseCase) session(ctx context.Context, imageID string) (*imaging.Session, error) {
	img, err := uc.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}

	rc, err := uc.storage.Open(ctx, img.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrImageNotFound, "open stored image", err)
		}
		return nil, fmt.Errorf("open stored image: %w", err)
	}
	defer rc.Close()

	s := imaging.NewSession(uc.decoder)
	if _, err := s.Load(rc); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}
