package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	engineCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_calls_total",
			Help: "Knowledge engine calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	engineCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_call_duration_seconds",
			Help:    "Knowledge engine call latency in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 180},
		},
		[]string{"op"},
	)

	queryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_queries_total",
			Help: "Dataset-scoped queries by outcome (ok, empty, denied).",
		},
		[]string{"outcome"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kgrbac_ready",
		Help: "1 when demo state has been built and the service can answer queries.",
	})
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			engineCallsTotal, engineCallDuration, queryOutcomes, ready,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEngineCall records one engine call.
func ObserveEngineCall(op, outcome string, d time.Duration) {
	engineCallsTotal.WithLabelValues(op, outcome).Inc()
	engineCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveQuery counts a query outcome.
func ObserveQuery(outcome string) {
	queryOutcomes.WithLabelValues(outcome).Inc()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument wraps next with in-flight, count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var knownPaths = map[string]struct{}{
	"/":        {},
	"/query":   {},
	"/share":   {},
	"/reset":   {},
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// CanonicalPath bounds label cardinality: known routes pass through, static
// assets collapse to /static/*, everything else becomes "other".
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if _, ok := knownPaths[p]; ok {
		return p
	}
	if strings.HasPrefix(p, "/static/") {
		return "/static/*"
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
