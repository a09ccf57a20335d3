// Package metrics exposes Prometheus collectors for HTTP traffic and
// grading.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gradingCalls    *prometheus.CounterVec
	gradingDuration prometheus.Histogram
	submissions     *prometheus.CounterVec
	quotaRejections *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizmark_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quizmark_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		),
		gradingCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizmark_grading_calls_total",
				Help: "Open-ended grading attempts by outcome",
			},
			[]string{"outcome"},
		),
		gradingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quizmark_grading_call_duration_seconds",
				Help:    "Duration of model calls made for grading",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizmark_submissions_total",
				Help: "Graded submissions by terminal status",
			},
			[]string{"status"},
		),
		quotaRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quizmark_quota_rejections_total",
				Help: "Model calls refused because a monthly quota was exhausted",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.requests, m.requestDuration,
		m.gradingCalls, m.gradingDuration,
		m.submissions, m.quotaRejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GradingCall records one grading attempt. d is zero for attempts that
// never reached the model.
func (m *Metrics) GradingCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gradingCalls.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.gradingDuration.Observe(d.Seconds())
	}
}

// Submission records a submission reaching a terminal status.
func (m *Metrics) Submission(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

// QuotaRejected records a refused call.
func (m *Metrics) QuotaRejected(kind string) {
	if m == nil {
		return
	}
	m.quotaRejections.WithLabelValues(kind).Inc()
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
