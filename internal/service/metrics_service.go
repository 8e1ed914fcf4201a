package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinsync/air-submit-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// submission pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	registryRequests *prometheus.CounterVec
	registryRetries  prometheus.Counter

	submissionsTotal *prometheus.CounterVec
	encountersTotal  *prometheus.CounterVec

	cacheLatency prometheus.Observer
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	registryRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_requests_total",
		Help: "Total register round-trips by outcome",
	}, []string{"outcome"})

	registryRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_retries_total",
		Help: "Total register request retries",
	})

	submissionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Total finished submissions by terminal status",
	}, []string{"status"})

	encountersTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "encounters_submitted_total",
		Help: "Total submitted encounters by classified status",
	}, []string{"status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, registryRequests, registryRetries,
		submissionsTotal, encountersTotal, cacheLatency, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		registryRequests: registryRequests,
		registryRetries:  registryRetries,
		submissionsTotal: submissionsTotal,
		encountersTotal:  encountersTotal,
		cacheLatency:     cacheLatency,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one handled request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveRegistryRequest counts one register round-trip by outcome.
func (m *MetricsService) ObserveRegistryRequest(outcome string) {
	if m == nil {
		return
	}
	m.registryRequests.WithLabelValues(outcome).Inc()
}

// IncRegistryRetry counts one retried register request.
func (m *MetricsService) IncRegistryRetry() {
	if m == nil {
		return
	}
	m.registryRetries.Inc()
}

// ObserveSubmission counts a submission reaching a terminal status.
func (m *MetricsService) ObserveSubmission(status models.SubmissionStatus) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(string(status)).Inc()
}

// ObserveEncounter counts one classified encounter outcome.
func (m *MetricsService) ObserveEncounter(status models.ResultStatus) {
	if m == nil {
		return
	}
	m.encountersTotal.WithLabelValues(string(status)).Inc()
}

// RecordCacheOperation tracks cache lookup latency and hit counters.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
