// Package metrics exposes Prometheus instrumentation for the listener.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sr_listener"

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	PollCycles         *prometheus.CounterVec
	Extractions        *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
	ExtractedValues    prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		// Labels: outcome (new, unchanged, empty, error)
		PollCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome",
		}, []string{"outcome"}),

		// Labels: source (orthanc, upload), status (ok, error)
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Processed SR documents",
		}, []string{"source", "status"}),

		ExtractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time from fetch to stored result",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),

		ExtractedValues: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_result_values",
			Help:      "Number of labels in the most recent result",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// ObservePoll counts one poller cycle.
func (m *Metrics) ObservePoll(outcome string) {
	m.PollCycles.WithLabelValues(outcome).Inc()
}

// ObserveExtraction records one pipeline run. values is ignored on error.
func (m *Metrics) ObserveExtraction(source string, started time.Time, values int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Extractions.WithLabelValues(source, status).Inc()
	m.ExtractionDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
	if err == nil {
		m.ExtractedValues.Set(float64(values))
	}
}

// Middleware records request counts and latency keyed by route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
