// Package metrics provides Prometheus metrics for the docforge engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	DraftsTotal    *prometheus.CounterVec
	DraftDuration  *prometheus.HistogramVec
	GateDecisions  *prometheus.CounterVec
	GateScore      prometheus.Histogram
	VoteOutcomes   *prometheus.CounterVec
	AttemptsUsed   prometheus.Histogram
	FeedbackRouted *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DraftsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_drafts_total",
				Help: "Total section draft calls by section and status.",
			},
			[]string{"section", "status"},
		),
		DraftDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docforge_draft_duration_seconds",
				Help:    "Section draft duration by section.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"section"},
		),
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_gate_decisions_total",
				Help: "Quality gate decisions by outcome.",
			},
			[]string{"decision"},
		),
		GateScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docforge_gate_score",
				Help:    "Overall completeness score at the quality gate.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		VoteOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_vote_outcomes_total",
				Help: "Committee vote outcomes.",
			},
			[]string{"outcome"},
		),
		AttemptsUsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docforge_attempts_used",
				Help:    "Revision attempts consumed per finished session.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		FeedbackRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docforge_feedback_routed_total",
				Help: "Feedback items routed to sections by source.",
			},
			[]string{"source"},
		),
		registry: reg,
	}

	reg.MustRegister(m.DraftsTotal)
	reg.MustRegister(m.DraftDuration)
	reg.MustRegister(m.GateDecisions)
	reg.MustRegister(m.GateScore)
	reg.MustRegister(m.VoteOutcomes)
	reg.MustRegister(m.AttemptsUsed)
	reg.MustRegister(m.FeedbackRouted)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDraft increments the draft counter.
func (m *Metrics) RecordDraft(section, status string, seconds float64) {
	m.DraftsTotal.WithLabelValues(section, status).Inc()
	m.DraftDuration.WithLabelValues(section).Observe(seconds)
}

// RecordGate records a gate decision and its score.
func (m *Metrics) RecordGate(decision string, score float64) {
	m.GateDecisions.WithLabelValues(decision).Inc()
	m.GateScore.Observe(score)
}

// RecordVote increments the vote outcome counter.
func (m *Metrics) RecordVote(outcome string) {
	m.VoteOutcomes.WithLabelValues(outcome).Inc()
}

// RecordFinish records the attempts spent on a finished session.
func (m *Metrics) RecordFinish(attempts int) {
	m.AttemptsUsed.Observe(float64(attempts))
}

// RecordFeedback counts routed feedback items from the gate or committee.
func (m *Metrics) RecordFeedback(source string, n int) {
	m.FeedbackRouted.WithLabelValues(source).Add(float64(n))
}
