package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the gateway's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "biosight",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosight",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biosight",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"method", "path"})

	analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosight",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Analysis submissions by outcome.",
	}, []string{"outcome"})

	bestEffortFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biosight",
		Subsystem: "persistence",
		Name:      "best_effort_failures_total",
		Help:      "Best-effort writes or reads that failed without failing the request.",
	}, []string{"op"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		analyses,
		bestEffortFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// MetricsHandler exposes the registry in Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAnalysis counts one /process outcome (success, unauthorized, ...).
func RecordAnalysis(outcome string) {
	analyses.WithLabelValues(outcome).Inc()
}

// RecordBestEffortFailure counts one swallowed failure.
func RecordBestEffortFailure(op string) {
	bestEffortFailures.WithLabelValues(op).Inc()
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded (/images/{name}, not every file).
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
