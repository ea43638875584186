package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePoll(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObservePoll("new")
	m.ObservePoll("new")
	m.ObservePoll("empty")

	if got := testutil.ToFloat64(m.PollCycles.WithLabelValues("new")); got != 2 {
		t.Errorf("expected 2 new cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.PollCycles.WithLabelValues("empty")); got != 1 {
		t.Errorf("expected 1 empty cycle, got %v", got)
	}
}

func TestObserveExtraction(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveExtraction("orthanc", time.Now(), 19, nil)
	m.ObserveExtraction("upload", time.Now(), 0, errors.New("bad document"))

	if got := testutil.ToFloat64(m.Extractions.WithLabelValues("orthanc", "ok")); got != 1 {
		t.Errorf("expected 1 ok extraction, got %v", got)
	}
	if got := testutil.ToFloat64(m.Extractions.WithLabelValues("upload", "error")); got != 1 {
		t.Errorf("expected 1 failed upload, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExtractedValues); got != 19 {
		t.Errorf("expected gauge to keep the last successful count, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/extractions/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "extraction not found")
	})
	e.GET("/metrics", m.Handler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/extractions/123", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/v1/extractions/:id", http.MethodGet, "404"))
	if got != 1 {
		t.Fatalf("expected 1 request recorded under the route template, got %v", got)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sr_listener_http_requests_total") {
		t.Error("expected exposition to include the request counter")
	}
}
