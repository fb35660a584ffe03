package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "path"},
	)

	// Firmware-specific metrics
	FirmwareManifestBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmware_manifest_builds_total",
			Help: "Total number of manifest builds by result",
		},
		[]string{"result"},
	)

	FirmwareSkippedEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firmware_manifest_skipped_entries_total",
			Help: "Total number of descriptor entries left out of a manifest",
		},
		[]string{"reason"},
	)

	FirmwareDownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firmware_download_bytes_total",
			Help: "Total firmware bytes written to download responses",
		},
	)

	FirmwareChipsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firmware_chips_total",
			Help: "Number of chip types with a flasher descriptor",
		},
	)

	DescriptorCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firmware_descriptor_cache_hits_total",
			Help: "Total number of descriptor cache hits",
		},
	)

	DescriptorCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firmware_descriptor_cache_misses_total",
			Help: "Total number of descriptor cache misses",
		},
	)

	MirrorSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firmware_mirror_sync_duration_seconds",
			Help:    "Duration of firmware mirror sync operations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	MirrorSyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firmware_mirror_sync_errors_total",
			Help: "Total number of firmware mirror sync errors",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ww.Status())
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
	})
}

// normalizePath maps chip and file segments to static labels so that
// arbitrary request paths do not explode label cardinality
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/firmware/") && len(path) > len("/api/firmware/"):
		return "/api/firmware/{chipType}"
	case strings.HasPrefix(path, "/firmware/"):
		return "/firmware/{chipType}/*"
	case path == "/", path == "/metrics", strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/webhooks/"):
		return path
	default:
		return "other"
	}
}

// chipFromPath returns the chip type segment of a manifest or download path
func chipFromPath(path string) string {
	var rest string
	switch {
	case strings.HasPrefix(path, "/api/firmware/"):
		rest = strings.TrimPrefix(path, "/api/firmware/")
	case strings.HasPrefix(path, "/firmware/"):
		rest = strings.TrimPrefix(path, "/firmware/")
	default:
		return ""
	}
	chip, _, _ := strings.Cut(rest, "/")
	return chip
}
