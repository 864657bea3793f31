package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quickgig",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quickgig",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quickgig",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quickgig",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of lifecycle transitions by entity and outcome.",
		},
		[]string{"entity", "transition", "outcome"},
	)

	pushAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quickgig",
			Subsystem: "push",
			Name:      "attempts_total",
			Help:      "Total number of push delivery attempts.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		lifecycleTransitions,
		pushAttempts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordTransition records a lifecycle transition outcome.
func RecordTransition(entity, transition string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	lifecycleTransitions.WithLabelValues(entity, transition, outcome).Inc()
}

// RecordPushAttempt records the outcome of one push delivery attempt.
func RecordPushAttempt(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	pushAttempts.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses entity ids so label cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "jobs", "applications", "engagements", "notifications", "users":
	default:
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	if len(parts) == 2 {
		return "/" + parts[0] + "/:id"
	}
	return "/" + parts[0] + "/:id/" + parts[2]
}
