package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks analysis jobs executed by the worker. Series are keyed
// by analysis type, and failed jobs are counted under their error kind.
type WorkerMetrics struct {
	registry *prometheus.Registry

	jobs        *prometheus.CounterVec
	jobSeconds  *prometheus.HistogramVec
	resultBytes *prometheus.HistogramVec
	running     prometheus.Gauge
	queueWait   prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_jobs_total",
			Help:        "Processed analysis jobs by analysis type and outcome.",
			ConstLabels: serviceLabel,
		}, []string{"analysis_type", "outcome"}),
		jobSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_job_duration_seconds",
			Help:        "Wall time of an analysis job by analysis type.",
			ConstLabels: serviceLabel,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"analysis_type"}),
		resultBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_result_bytes",
			Help:        "Encoded size of stored analysis results.",
			ConstLabels: serviceLabel,
			Buckets:     prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"analysis_type"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "analysis_jobs_in_flight",
			Help:        "Analysis jobs currently being processed.",
			ConstLabels: serviceLabel,
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between analysis submission and processing start.",
			ConstLabels: serviceLabel,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
	}

	registry.MustRegister(m.jobs, m.jobSeconds, m.resultBytes, m.running, m.queueWait)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackInFlight bumps the in-flight gauge and returns the matching release.
func (m *WorkerMetrics) TrackInFlight() func() {
	m.running.Inc()
	return m.running.Dec
}

// ObserveJob records one finished job. An empty outcome means success;
// otherwise it is the error kind the job failed with.
func (m *WorkerMetrics) ObserveJob(analysisType string, duration time.Duration, resultBytes int, outcome string) {
	if analysisType == "" {
		analysisType = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.jobs.WithLabelValues(analysisType, outcome).Inc()
	m.jobSeconds.WithLabelValues(analysisType).Observe(duration.Seconds())
	if outcome == "success" && resultBytes > 0 {
		m.resultBytes.WithLabelValues(analysisType).Observe(float64(resultBytes))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueWait.Observe(lag.Seconds())
}
