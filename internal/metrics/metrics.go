// Package metrics provides Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts conversation turns by outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_turns_total",
			Help: "Conversation turns handled, by outcome",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carmatch_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	// GuardrailRejections counts blocked messages.
	GuardrailRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_guardrail_rejections_total",
			Help: "Messages rejected by the guardrail filter",
		},
		[]string{"direction", "category"},
	)

	// ExtractionsTotal counts profile extraction attempts.
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_extractions_total",
			Help: "Profile extraction attempts, by status",
		},
		[]string{"status"},
	)

	// RankingTier counts which ranking strategy produced the result.
	RankingTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_ranking_tier_total",
			Help: "Rankings served, by strategy",
		},
		[]string{"strategy"},
	)

	// RankingFallbacks counts strategy degradations.
	RankingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_ranking_fallbacks_total",
			Help: "Ranking strategies skipped, by strategy and reason",
		},
		[]string{"strategy", "reason"},
	)

	// InferenceDuration tracks inference provider latency.
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carmatch_inference_duration_seconds",
			Help:    "Inference call duration, by provider and status",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "status"},
	)

	// BreakerState reports circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "carmatch_breaker_state",
			Help: "Circuit breaker state per dependency",
		},
		[]string{"name"},
	)

	// EventsPublished counts outbound domain events.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carmatch_events_published_total",
			Help: "Domain events published, by subject and status",
		},
		[]string{"subject", "status"},
	)
)
