package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
	"github.com/kirillkom/hdimage/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/hdimage/internal/infrastructure/tiffio"
)

const (
	contentTypeTIFF = "image/tiff"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxAnalysisRequestBytes = 1 << 20
)

type uploadResponse struct {
	Message  string               `json:"message"`
	ImageID  string               `json:"image_id"`
	Metadata domain.ImageMetadata `json:"metadata"`
}

func (rt *Router) uploadImage(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload", err))
		return
	}
	part, err := filePart(mr)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer part.Close()

	start := time.Now()
	img, err := rt.uploader.Upload(r.Context(), part.FileName(), part)
	rt.observe("upload", start, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, img.Metadata.DType, img.Metadata.SizeBytes)
	}

	w.Header().Set("Location", "/v1/images/"+img.ID+"/metadata")
	rt.writeResult(w, r, http.StatusCreated, uploadResponse{
		Message:  "Image uploaded successfully",
		ImageID:  img.ID,
		Metadata: img.Metadata,
	})
}

// filePart streams to the "file" field so large stacks are never buffered
// in memory by the form parser.
func filePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.NewError(domain.ErrInvalidInput, "multipart field 'file' is required")
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read multipart body", err)
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (rt *Router) getMetadata(w http.ResponseWriter, r *http.Request) {
	img, err := rt.images.GetByID(r.Context(), r.PathValue("image_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, http.StatusOK, img.Metadata)
}

func (rt *Router) getSlice(w http.ResponseWriter, r *http.Request) {
	format, err := queryFormat(r, "json", "tiff")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	idx, err := sliceIndexFromQuery(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	imageID := r.PathValue("image_id")
	start := time.Now()
	plane, err := rt.analyzer.Slice(r.Context(), imageID, idx)
	rt.observe("slice", start, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	if format == "json" {
		rt.writeResult(w, r, http.StatusOK, plane)
		return
	}
	var buf bytes.Buffer
	if err := tiffio.EncodePlane(&buf, plane, &tiffio.Options{Deflate: true}); err != nil {
		rt.writeError(w, r, fmt.Errorf("encode slice: %w", err))
		return
	}
	name := fmt.Sprintf("%s_t%d_z%d_c%d.tiff", imageID, idx.Time, idx.Z, idx.Channel)
	writeAttachment(w, contentTypeTIFF, name, buf.Bytes())
}

type channelStatsResponse struct {
	imaging.ChannelStats
	Global imaging.GlobalStats `json:"global_stats"`
}

func (rt *Router) getStatistics(w http.ResponseWriter, r *http.Request) {
	format, err := queryFormat(r, "json", "xlsx")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	channel := xlsx.AllChannels
	if r.URL.Query().Has("channel") {
		if channel, err = queryIndex(r, "channel", 0); err != nil {
			rt.writeError(w, r, err)
			return
		}
	}

	imageID := r.PathValue("image_id")
	start := time.Now()
	st, err := rt.analyzer.Statistics(r.Context(), imageID)
	var filtered imaging.ChannelStats
	if err == nil && channel != xlsx.AllChannels {
		filtered, err = st.Channel(channel)
	}
	rt.observe("statistics", start, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	if format == "json" {
		if channel == xlsx.AllChannels {
			rt.writeResult(w, r, http.StatusOK, st)
			return
		}
		rt.writeResult(w, r, http.StatusOK, channelStatsResponse{ChannelStats: filtered, Global: st.Global})
		return
	}
	var buf bytes.Buffer
	if err := xlsx.WriteStatistics(&buf, st, channel); err != nil {
		rt.writeError(w, r, fmt.Errorf("export statistics: %w", err))
		return
	}
	writeAttachment(w, contentTypeXLSX, imageID+"_statistics.xlsx", buf.Bytes())
}

func (rt *Router) reduce(w http.ResponseWriter, r *http.Request) {
	n, err := queryIndex(r, "n_components", imaging.DefaultComponents)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	start := time.Now()
	red, err := rt.analyzer.Reduce(r.Context(), r.PathValue("image_id"), n)
	rt.observe("reduce", start, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, http.StatusOK, red)
}

func (rt *Router) segment(w http.ResponseWriter, r *http.Request) {
	idx, err := sliceIndexFromQuery(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	method := strings.TrimSpace(r.URL.Query().Get("method"))
	if method == "" {
		method = string(imaging.MethodOtsu)
	}

	start := time.Now()
	seg, err := rt.analyzer.Segment(r.Context(), r.PathValue("image_id"), idx, method)
	rt.observe("segment", start, err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, http.StatusOK, seg)
}

type analysisRequest struct {
	Type        string `json:"type"`
	NComponents int    `json:"n_components"`
}

func (rt *Router) scheduleAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAnalysisRequestBytes)
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode analysis request", err))
		return
	}

	job, err := rt.scheduler.Schedule(r.Context(), r.PathValue("image_id"), domain.AnalysisRequest{
		Type:        domain.AnalysisType(req.Type),
		NComponents: req.NComponents,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/analyses/"+job.ID)
	rt.writeResult(w, r, http.StatusAccepted, job)
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) {
	job, err := rt.scheduler.GetAnalysis(r.Context(), r.PathValue("analysis_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, http.StatusOK, job)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
