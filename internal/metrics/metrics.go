// Package metrics exposes Prometheus metrics for the HTTP surface and the
// focus engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trees",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "trees",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// FocusComputations counts engine calls by operation ("dense", "visible", "navigate").
	FocusComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trees",
		Subsystem: "focus",
		Name:      "computations_total",
		Help:      "Total focus engine computations",
	}, []string{"operation"})

	// SkippedRecords counts records left out of proximity ordering.
	SkippedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trees",
		Subsystem: "focus",
		Name:      "skipped_records_total",
		Help:      "Records excluded from proximity ordering for malformed coordinates",
	})

	VisibleRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trees",
		Subsystem: "focus",
		Name:      "visible_records",
		Help:      "Number of records returned by proximity ordering",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
	})

	DatasetTrees = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trees",
		Subsystem: "dataset",
		Name:      "trees",
		Help:      "Trees in the loaded dataset",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trees",
		Subsystem: "sse",
		Name:      "active_streams",
		Help:      "Open viewer event streams",
	})
)

// ObserveVisible records one proximity ordering.
func ObserveVisible(operation string, visible, skipped int) {
	FocusComputations.WithLabelValues(operation).Inc()
	VisibleRecords.Observe(float64(visible))
	SkippedRecords.Add(float64(skipped))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request metrics. The path label is the matched
// ServeMux pattern so IDs do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
