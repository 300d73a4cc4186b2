package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/hdimage/internal/config"
	"github.com/kirillkom/hdimage/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	env := newTestEnv(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	})

	res1 := env.do(t, http.MethodGet, "/v1/images/img-1/metadata", nil, "")
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := env.do(t, http.MethodGet, "/v1/images/img-1/metadata", nil, "")
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	for range 3 {
		if res := env.do(t, http.MethodGet, "/healthz", nil, ""); res.Code != http.StatusOK {
			t.Fatalf("health checks must bypass the limiter, got %d", res.Code)
		}
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	handler := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), 1, 1)

	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/v1/images/x/metadata", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:5000", i+1)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusNoContent {
			t.Fatalf("client %d expected its own bucket, got %d", i, res.Code)
		}
	}
}

func TestBackpressureGateReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureGate(1, 20*time.Millisecond)(base)

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/images/img-1/reduce", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/v1/images/img-1/reduce", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	handler := recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("index out of range [3] with length 3")
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/images/x/slice", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if bytes.Contains(res.Body.Bytes(), []byte("index out of range")) {
		t.Fatalf("panic value leaked to client: %s", res.Body.String())
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrImageNotFound, "get", fmt.Errorf("id=x")), http.StatusNotFound},
		{domain.NewError(domain.ErrAnalysisNotFound, "id=y"), http.StatusNotFound},
		{domain.NewError(domain.ErrNoImageLoaded, "slice"), http.StatusNotFound},
		{domain.NewError(domain.ErrInvalidInput, "bad"), http.StatusBadRequest},
		{domain.NewError(domain.ErrIndexOutOfRange, "time"), http.StatusBadRequest},
		{domain.NewError(domain.ErrUnsupportedMethod, "watershed"), http.StatusBadRequest},
		{domain.NewError(domain.ErrInvalidDimensionality, "rank 1"), http.StatusUnprocessableEntity},
		{domain.NewError(domain.ErrLoadFailure, "not a tiff"), http.StatusUnprocessableEntity},
		{domain.NewError(domain.ErrTemporary, "nats"), http.StatusServiceUnavailable},
		{domain.NewError(domain.ErrAnalysisFailure, "svd"), http.StatusInternalServerError},
		{fmt.Errorf("save: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestBackpressureGateIsSharedAcrossRoutes(t *testing.T) {
	gate := backpressureGate(1, 10*time.Millisecond)
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})

	slow := gate(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	other := gate(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	go func() {
		slow.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/images/a/reduce", nil))
		close(done)
	}()
	<-started

	res := httptest.NewRecorder()
	other.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/images/a/segment", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected second route to share the saturated gate, got %d", res.Code)
	}
	close(release)
	<-done
}
