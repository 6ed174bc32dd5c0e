package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiCallsLatencyMs, aiCallsTotal, aiRepairAttempts, aiPromptTokens)
}

var (
	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 25000},
		},
		[]string{"provider", "kind", "success"},
	)

	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "AI calls by provider, kind (chat|stream) and outcome (ok|error|timeout).",
		},
		[]string{"provider", "kind", "outcome"},
	)

	aiRepairAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_structured_attempts",
			Help:    "Send calls needed to obtain valid structured output.",
			Buckets: []float64{1, 2, 3, 4},
		},
		[]string{"outcome"}, // valid|exhausted|send_error
	)

	aiPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Estimated prompt tokens per call kind.",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		},
		[]string{"kind"},
	)
)

func ObserveAICall(provider, kind, outcome string, latencyMs int64) {
	aiCallsTotal.WithLabelValues(norm(provider), norm(kind), norm(outcome)).Inc()
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(kind), strconv.FormatBool(outcome == "ok")).
		Observe(float64(latencyMs))
}

func ObserveStructured(outcome string, attempts int) {
	aiRepairAttempts.WithLabelValues(norm(outcome)).Observe(float64(attempts))
}

func ObservePromptTokens(kind string, tokens int) {
	aiPromptTokens.WithLabelValues(norm(kind)).Observe(float64(tokens))
}
