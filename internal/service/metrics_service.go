package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

// Queue message outcomes recorded by ObserveQueueMessage.
const (
	QueuePublished = "published"
	QueueConsumed  = "consumed"
	QueueDropped   = "dropped"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the report workers.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	reportsTotal    *prometheus.CounterVec
	reportDuration  *prometheus.HistogramVec
	reportRows      prometheus.Histogram
	queueMessages   *prometheus.CounterVec
	cacheOps        *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	gaugeOnce sync.Once
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

	reportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bp_reports_total",
		Help: "Enrollment report runs by terminal status",
	}, []string{"status", "requester_kind"})

	reportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bp_report_duration_seconds",
		Help:    "Wall time of an enrollment report run",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"status"})

	reportRows := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bp_report_rows",
		Help:    "Data rows written per completed report",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	queueMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bp_report_queue_messages_total",
		Help: "Report queue messages by outcome",
	}, []string{"outcome"})

	cacheOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_operations_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_operation_duration_seconds",
		Help:    "Latency of cache reads and writes",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"op"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reportsTotal, reportDuration, reportRows, queueMessages, cacheOps, cacheLatency, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		reportsTotal:    reportsTotal,
		reportDuration:  reportDuration,
		reportRows:      reportRows,
		queueMessages:   queueMessages,
		cacheOps:        cacheOps,
		cacheLatency:    cacheLatency,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveReport records the outcome of one report run.
func (m *MetricsService) ObserveReport(kind models.RequesterKind, status models.ReportStatus, rows int, duration time.Duration) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(string(status), string(kind)).Inc()
	m.reportDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	if status == models.ReportStatusCompleted {
		m.reportRows.Observe(float64(rows))
	}
}

// ObserveQueueMessage counts a queue message by outcome.
func (m *MetricsService) ObserveQueueMessage(outcome string) {
	if m == nil {
		return
	}
	m.queueMessages.WithLabelValues(outcome).Inc()
}

// RegisterPoolGauge exposes the worker pool's in-flight count. Only the first call registers.
func (m *MetricsService) RegisterPoolGauge(inFlight func() int64) {
	if m == nil || inFlight == nil {
		return
	}
	m.gaugeOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bp_report_workers_in_flight",
			Help: "Report runs currently executing",
		}, func() float64 {
			return float64(inFlight())
		}))
	})
}

// RecordCacheOperation records a cache read as a hit or a miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOps.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite records the latency of a cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}
