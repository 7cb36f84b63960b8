// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages persisted, by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_messages_total",
			Help: "Total support messages persisted",
		},
		[]string{"role"},
	)

	// SynthesisDuration tracks reply synthesis duration by source path.
	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_synthesis_duration_seconds",
			Help:    "Reply synthesis duration by response source",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"source"},
	)

	// RepliesTotal tracks synthesized replies by source path.
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_replies_total",
			Help: "Total synthesized replies by response source",
		},
		[]string{"source"},
	)

	// ModelCallFailures tracks external model call failures absorbed by the
	// deterministic fallback.
	ModelCallFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_model_call_failures_total",
			Help: "Total external model call failures",
		},
	)

	// KnowledgeSearches tracks knowledge base searches by outcome.
	KnowledgeSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_knowledge_searches_total",
			Help: "Total knowledge base searches",
		},
		[]string{"outcome"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_conversations_total",
			Help: "Total conversations created",
		},
	)

	// EscalationsTotal tracks conversations escalated to human support.
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_escalations_total",
			Help: "Total conversations escalated to human support",
		},
	)

	// FeedbackTotal tracks feedback submissions by type.
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_feedback_total",
			Help: "Total feedback submissions",
		},
		[]string{"type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSynthesis records metrics for a synthesized reply.
func RecordSynthesis(source string, duration float64) {
	SynthesisDuration.WithLabelValues(source).Observe(duration)
	RepliesTotal.WithLabelValues(source).Inc()
}
