package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GradingCall("ok", time.Second)
	m.Submission("graded")
	m.QuotaRejected("ai_correction")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.GradingCall("ok", 2*time.Second)
	m.GradingCall("ok", 0)
	m.GradingCall("timeout", 0)
	m.Submission("partially_graded")

	if got := testutil.ToFloat64(m.gradingCalls.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.gradingCalls.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeout calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues("partially_graded")); got != 1 {
		t.Errorf("submissions = %v, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/quizzes/{quizID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quizzes/42", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/quizzes/{quizID}", "404")); got != 1 {
		t.Errorf("request counter = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "quizmark_http_requests_total") {
		t.Error("metrics endpoint should expose the request counter")
	}
}
