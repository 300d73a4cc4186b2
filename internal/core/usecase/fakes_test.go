package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
)

type imageRepoFake struct {
	images    map[string]*domain.Image
	createErr error
}

func newImageRepoFake() *imageRepoFake {
	return &imageRepoFake{images: map[string]*domain.Image{}}
}

func (f *imageRepoFake) Create(_ context.Context, img *domain.Image) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyImg := *img
	f.images[img.ID] = &copyImg
	return nil
}

func (f *imageRepoFake) GetByID(_ context.Context, id string) (*domain.Image, error) {
	img, ok := f.images[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrImageNotFound, "get image", fmt.Errorf("id=%s", id))
	}
	copyImg := *img
	return &copyImg, nil
}

type storageFake struct {
	files   map[string][]byte
	saveErr error
	openErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("open file: %w", os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.files, key)
	return nil
}

// decoderFake returns arr for any stream whose content is not "corrupt".
type decoderFake struct {
	arr imaging.Array
}

func (f decoderFake) Decode(r io.Reader) (imaging.Array, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return imaging.Array{}, err
	}
	if string(raw) == "corrupt" {
		return imaging.Array{}, fmt.Errorf("tiffio: not a TIFF file")
	}
	return f.arr, nil
}

func gradient(shape ...int) imaging.Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64((i * 7) % 256)
	}
	return imaging.Array{DType: imaging.Uint8, Shape: shape, Data: data}
}

type statusCall struct {
	status domain.AnalysisStatus
	errMsg string
}

type analysisRepoFake struct {
	jobs        map[string]*domain.AnalysisJob
	createErr   error
	getErr      error
	saveErr     error
	statusCalls []statusCall
	results     map[string]json.RawMessage
}

func newAnalysisRepoFake() *analysisRepoFake {
	return &analysisRepoFake{
		jobs:    map[string]*domain.AnalysisJob{},
		results: map[string]json.RawMessage{},
	}
}

func (f *analysisRepoFake) Create(_ context.Context, job *domain.AnalysisJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.jobs[job.ID] = &copyJob
	return nil
}

func (f *analysisRepoFake) GetByID(_ context.Context, id string) (*domain.AnalysisJob, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("id=%s", id))
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *analysisRepoFake) UpdateStatus(_ context.Context, id string, status domain.AnalysisStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	if job, ok := f.jobs[id]; ok {
		job.Status = status
		job.Error = errMessage
	}
	return nil
}

func (f *analysisRepoFake) SaveResult(_ context.Context, id string, result json.RawMessage) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.results[id] = result
	if job, ok := f.jobs[id]; ok {
		job.Status = domain.AnalysisReady
		job.Result = result
	}
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishAnalysisRequested(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, jobID)
	return nil
}

func (f *queueFake) SubscribeAnalysisRequested(context.Context, func(context.Context, string) error) error {
	return fmt.Errorf("not implemented")
}

type jobObservation struct {
	analysisType string
	resultBytes  int
	outcome      string
}

type observerFake struct {
	lags []time.Duration
	jobs []jobObservation
}

func (o *observerFake) ObserveQueueLag(lag time.Duration) {
	o.lags = append(o.lags, lag)
}

func (o *observerFake) ObserveJob(analysisType string, _ time.Duration, resultBytes int, outcome string) {
	o.jobs = append(o.jobs, jobObservation{analysisType: analysisType, resultBytes: resultBytes, outcome: outcome})
}
