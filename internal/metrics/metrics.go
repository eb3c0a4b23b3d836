package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the desk exports. A nil *Metrics is valid and
// records nothing, so packages can be used without a registry in tests.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	backendTotal    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	unmatchedTotal  prometheus.Counter
	intakeTotal     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "desk",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "desk",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "desk",
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		backendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "desk",
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Analysis backend calls by path and status code.",
			},
			[]string{"path", "status"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "desk",
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Analysis backend call duration in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"path"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "desk",
				Subsystem: "analysis",
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds by outcome.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
			},
			[]string{"stage", "outcome"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "desk",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Completed analysis runs by outcome.",
			},
			[]string{"outcome"},
		),
		unmatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "desk",
				Subsystem: "render",
				Name:      "unmatched_highlights_total",
				Help:      "Objections whose sentence could not be located in the document.",
			},
		),
		intakeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "desk",
				Subsystem: "intake",
				Name:      "documents_total",
				Help:      "Accepted uploads by kind and cache result.",
			},
			[]string{"kind", "cache"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.backendTotal,
		m.backendDuration,
		m.stageDuration,
		m.runsTotal,
		m.unmatchedTotal,
		m.intakeTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency under the given route label.
// The route is the mux pattern rather than the raw path so ids do not explode
// label cardinality.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveBackend records one backend round trip. status is 0 for transport
// failures.
func (m *Metrics) ObserveBackend(path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.backendTotal.WithLabelValues(path, code).Inc()
	m.backendDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordUnmatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unmatchedTotal.Add(float64(n))
}

func (m *Metrics) RecordIntake(kind string, cached bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	m.intakeTotal.WithLabelValues(kind, cache).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
