// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, httpRequestDurationMs, rateLimitDecisions) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	httpRequestDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds (streams excluded).",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"route", "method"},
	)

	rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter outcomes: allowed, limited, error (fail-open).",
		},
		[]string{"route", "result"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveHTTP(route, method string, code int, latencyMs int64, streaming bool) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	if !streaming {
		httpRequestDurationMs.WithLabelValues(route, method).Observe(float64(latencyMs))
	}
}

func IncRateLimit(route, result string) {
	rateLimitDecisions.WithLabelValues(route, norm(result)).Inc()
}
