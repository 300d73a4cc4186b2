package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/hdimage/internal/config"
	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
	"github.com/kirillkom/hdimage/internal/core/usecase"
	"github.com/kirillkom/hdimage/internal/infrastructure/tiffio"
)

const (
	testImageID = "img-1"
	nanImageID  = "img-nan"
)

type imageRepoFake struct {
	images map[string]*domain.Image
}

func (f *imageRepoFake) Create(_ context.Context, img *domain.Image) error {
	f.images[img.ID] = img
	return nil
}

func (f *imageRepoFake) GetByID(_ context.Context, id string) (*domain.Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrImageNotFound, "get image", fmt.Errorf("id=%s", id))
	}
	return img, nil
}

type memoryStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

type uploaderFake struct {
	err      error
	received []byte
}

func (f *uploaderFake) Upload(_ context.Context, filename string, body io.Reader) (*domain.Image, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.received = raw
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Image{
		ID:       "img-new",
		Filename: filename,
		Metadata: domain.ImageMetadata{
			Dimensions: []int{1, 1, 1, 4, 4},
			DType:      "uint8",
			SizeBytes:  16,
		},
	}, nil
}

type schedulerFake struct {
	jobs map[string]*domain.AnalysisJob
	err  error
}

func (f *schedulerFake) Schedule(_ context.Context, imageID string, req domain.AnalysisRequest) (*domain.AnalysisJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	typ, ok := domain.ParseAnalysisType(string(req.Type))
	if !ok {
		return nil, domain.NewError(domain.ErrUnsupportedMethod, "unsupported analysis type %q", req.Type)
	}
	job := &domain.AnalysisJob{
		ID:          "job-1",
		ImageID:     imageID,
		Type:        typ,
		NComponents: req.NComponents,
		Status:      domain.AnalysisQueued,
		CreatedAt:   time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *schedulerFake) GetAnalysis(_ context.Context, id string) (*domain.AnalysisJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("id=%s", id))
	}
	return job, nil
}

// analyzerErrFake fails every operation with err.
type analyzerErrFake struct {
	err error
}

func (f analyzerErrFake) Slice(context.Context, string, domain.SliceIndex) (imaging.Plane, error) {
	return imaging.Plane{}, f.err
}

func (f analyzerErrFake) Statistics(context.Context, string) (imaging.Stats, error) {
	return imaging.Stats{}, f.err
}

func (f analyzerErrFake) Reduce(context.Context, string, int) (imaging.Reduction, error) {
	return imaging.Reduction{}, f.err
}

func (f analyzerErrFake) Segment(context.Context, string, domain.SliceIndex, string) (imaging.Segmentation, error) {
	return imaging.Segmentation{}, f.err
}

// stackArray is a (2, 3, 2, 8, 8) uint8 stack with varied intensities.
func stackArray() imaging.Array {
	shape := []int{2, 3, 2, 8, 8}
	data := make([]float64, 2*3*2*8*8)
	for i := range data {
		data[i] = float64((i * 37) % 251)
	}
	return imaging.Array{DType: imaging.Uint8, Shape: shape, Data: data}
}

// nanPlane is a 4x4 float32 image with one missing sample.
func nanPlane() imaging.Array {
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i) / 4
	}
	data[5] = math.NaN()
	return imaging.Array{DType: imaging.Float32, Shape: []int{4, 4}, Data: data}
}

type testEnv struct {
	router    *Router
	handler   http.Handler
	uploader  *uploaderFake
	scheduler *schedulerFake
}

// newTestEnv wires the real analysis use case and TIFF codec over in-memory
// storage holding one stored stack.
func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	var buf bytes.Buffer
	if err := tiffio.Encode(&buf, stackArray(), nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	var nanBuf bytes.Buffer
	if err := tiffio.Encode(&nanBuf, nanPlane(), nil); err != nil {
		t.Fatalf("encode nan fixture: %v", err)
	}
	storage := &memoryStorage{files: map[string][]byte{
		"img-1.tiff":   buf.Bytes(),
		"img-nan.tiff": nanBuf.Bytes(),
	}}
	repo := &imageRepoFake{images: map[string]*domain.Image{
		testImageID: {
			ID:          testImageID,
			Filename:    "stack.tif",
			StoragePath: "img-1.tiff",
			Metadata: domain.ImageMetadata{
				Dimensions: []int{2, 3, 2, 8, 8},
				DType:      "uint8",
				SizeBytes:  768,
				ShapeDescription: domain.ShapeDescription{
					TimeFrames: 2, ZSlices: 3, Channels: 2, Height: 8, Width: 8,
				},
			},
		},
		nanImageID: {
			ID:          nanImageID,
			Filename:    "missing.tif",
			StoragePath: "img-nan.tiff",
			Metadata: domain.ImageMetadata{
				Dimensions: []int{1, 1, 1, 4, 4},
				DType:      "float32",
				SizeBytes:  64,
			},
		},
	}}
	analyzer := usecase.NewImageAnalysisUseCase(repo, storage, tiffio.NewDecoder())
	env := &testEnv{
		uploader:  &uploaderFake{},
		scheduler: &schedulerFake{jobs: map[string]*domain.AnalysisJob{}},
	}
	env.router = NewRouter(cfg, env.uploader, analyzer, analyzer, env.scheduler)
	env.handler = env.router.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res := httptest.NewRecorder()
	e.handler.ServeHTTP(res, req)
	return res
}

func decodeJSON(t *testing.T, res *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(res.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
}
