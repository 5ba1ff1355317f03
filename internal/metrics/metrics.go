// Package metrics declares the prometheus collectors of the chat pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prchat"

var (
	// Questions counts questions by classified category and terminal state
	// (delivered, fallback_delivered, rejected_input).
	Questions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "questions_total",
		Help:      "Questions processed by category and terminal state",
	}, []string{"category", "state"})

	// TurnLatency measures one question end to end.
	TurnLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end question latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"state"})

	// ClassifierConfidence is the distribution of classification confidence.
	ClassifierConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "confidence",
		Help:      "Distribution of classification confidence",
		Buckets:   []float64{0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
	}, []string{"category"})

	// ContextFetches counts fetcher outcomes (ok, empty, error).
	ContextFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "context",
		Name:      "fetches_total",
		Help:      "Context fetcher outcomes by kind",
	}, []string{"kind", "outcome"})

	// ContextFetchLatency measures a single fetcher.
	ContextFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "context",
		Name:      "fetch_duration_seconds",
		Help:      "Context fetcher latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"kind"})

	// SecretsRedacted counts secrets masked in patch previews.
	SecretsRedacted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "context",
		Name:      "secrets_redacted_total",
		Help:      "Secrets redacted from patch previews",
	})

	// ModelCalls counts model attempts by tier and outcome.
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Model call attempts by tier and outcome",
	}, []string{"tier", "outcome"})

	// ModelLatency measures a single model attempt.
	ModelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Model call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"tier"})

	// Validations counts validator verdicts.
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "evaluations_total",
		Help:      "Response evaluations by verdict",
	}, []string{"verdict"})

	// HallucinationScore is the distribution of hallucination scores.
	HallucinationScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "validator",
		Name:      "hallucination_score",
		Help:      "Distribution of hallucination scores",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// Fallbacks counts fallback payloads by case.
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fallback",
		Name:      "responses_total",
		Help:      "Fallback responses by case",
	}, []string{"case"})

	// ActiveObservers is the number of connections currently in a room.
	ActiveObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "observers",
		Help:      "Connections currently joined to a session room",
	})

	// BroadcastEvents counts events fanned out, by event name.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "events_total",
		Help:      "Events delivered to observers by event name",
	}, []string{"event"})

	// ConversationStates is the number of sessions with in-memory state.
	ConversationStates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "conversation",
		Name:      "states",
		Help:      "Sessions with in-memory conversation state",
	})
)
