package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/hdimage/internal/config"
	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/ports"
	"github.com/kirillkom/hdimage/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg       config.Config
	uploader  ports.ImageUploader
	images    ports.ImageReader
	analyzer  ports.ImageAnalyzer
	scheduler ports.AnalysisScheduler
	metrics   *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	uploader ports.ImageUploader,
	images ports.ImageReader,
	analyzer ports.ImageAnalyzer,
	scheduler ports.AnalysisScheduler,
) *Router {
	return &Router{
		cfg:       cfg,
		uploader:  uploader,
		images:    images,
		analyzer:  analyzer,
		scheduler: scheduler,
	}
}

// WithMetrics enables the /metrics endpoint and per-route instrumentation.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	gate := backpressureGate(rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	heavy := func(h http.HandlerFunc) http.Handler { return gate(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.Handle("POST /v1/images", heavy(rt.uploadImage))
	mux.HandleFunc("GET /v1/images/{image_id}/metadata", rt.getMetadata)
	mux.Handle("GET /v1/images/{image_id}/slice", heavy(rt.getSlice))
	mux.Handle("GET /v1/images/{image_id}/statistics", heavy(rt.getStatistics))
	mux.Handle("POST /v1/images/{image_id}/reduce", heavy(rt.reduce))
	mux.Handle("POST /v1/images/{image_id}/segment", heavy(rt.segment))
	mux.HandleFunc("POST /v1/images/{image_id}/analyses", rt.scheduleAnalysis)
	mux.HandleFunc("GET /v1/analyses/{analysis_id}", rt.getAnalysis)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = recoverMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeResult encodes payload before committing status, so a result that
// cannot be encoded is reported through writeError.
func (rt *Router) writeResult(w http.ResponseWriter, r *http.Request, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		w.Header().Del("Location")
		rt.writeError(w, r, fmt.Errorf("encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}

// writeError maps err to a status. Server-side causes are logged and replaced
// with a generic message.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", domain.KindOf(err),
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: clientMessage(status, err)})
}

// observe records one engine operation when metrics are enabled.
func (rt *Router) observe(operation string, start time.Time, err error) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordAnalysis(serviceName, operation, domain.KindOf(err), time.Since(start))
}
