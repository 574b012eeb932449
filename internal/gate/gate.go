// Package gate implements the quality gate: it scores the assembled document
// through the external analyzer and either clears it for committee review or
// converts findings into section-scoped revision feedback.
package gate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/registry"
)

// Decision is the gate's verdict on one document revision.
type Decision string

const (
	DecisionGenerateReport   Decision = "generate_report"
	DecisionNeedsImprovement Decision = "needs_improvement"
)

// PassingScore is the fixed gate threshold: needs_improvement iff the overall
// score is strictly below it. The two outcomes are mutually exclusive and
// exhaustive; there is no third path.
const PassingScore = 70.0

// ReviewScale is the upper bound of the per-section review scale.
const ReviewScale = 10.0

// Gate binds the analyzer and the feedback router.
type Gate struct {
	analyzer analysis.Analyzer
	router   *Router
	logger   zerolog.Logger
}

// New creates a Gate.
func New(analyzer analysis.Analyzer, router *Router, logger zerolog.Logger) *Gate {
	return &Gate{
		analyzer: analyzer,
		router:   router,
		logger:   logger.With().Str("component", "gate").Logger(),
	}
}

// Evaluate scores the document and decides the path forward. On
// needs_improvement every finding is routed to exactly one section's feedback
// ledger and that section is forced to needs_revision.
//
// An analyzer failure never passes the document: the gate fails closed with a
// zero-score analysis and a generic feedback item on the default section. The
// analyzer error is returned for observability alongside the decision.
func (g *Gate) Evaluate(ctx context.Context, documentText string, rules analysis.RuleContext, reg *registry.Registry) (*analysis.CompletenessAnalysis, Decision, error) {
	an, err := g.analyzer.Score(ctx, documentText, rules)
	if err != nil {
		g.logger.Error().Err(err).Msg("analyzer failed, failing closed")
		an = &analysis.CompletenessAnalysis{
			OverallScore: 0,
			Summary:      "analyzer unavailable: " + err.Error(),
			Findings: []analysis.Finding{{
				Kind:    analysis.KindConceptGap,
				Message: "document could not be analyzed; revise and retry (" + err.Error() + ")",
			}},
		}
	}

	if an.OverallScore >= PassingScore {
		g.logger.Info().Float64("score", an.OverallScore).Msg("gate passed")
		return an, DecisionGenerateReport, err
	}

	routed := 0
	for _, f := range an.Findings {
		section := g.router.Route(f)
		if aerr := reg.AddFeedback(section, delta(f)); aerr != nil {
			g.logger.Error().Err(aerr).Str("section", section).Msg("feedback routing failed")
			continue
		}
		routed++
	}
	if routed == 0 {
		// A failing score with no routable findings must still unlock the
		// revision loop somewhere.
		_ = reg.AddFeedback(g.router.defaultSection, registry.Feedback{
			ToChange: []string{"overall quality below threshold; tighten and clarify this section"},
		})
		routed++
	}
	g.logger.Info().
		Float64("score", an.OverallScore).
		Int("findings", len(an.Findings)).
		Int("routed", routed).
		Msg("gate requires improvement")

	return an, DecisionNeedsImprovement, err
}

// SectionScores derives a 0-10 review score for each named section from the
// document analysis. A section starts at the overall score scaled down to
// the review range and loses one point per finding routed to it, floored at
// zero. Sections an analyzer singled out therefore score below their
// untouched siblings.
func (g *Gate) SectionScores(an *analysis.CompletenessAnalysis, names []string) map[string]float64 {
	penalty := make(map[string]int, len(an.Findings))
	for _, f := range an.Findings {
		penalty[g.router.Route(f)]++
	}

	scores := make(map[string]float64, len(names))
	for _, name := range names {
		s := an.OverallScore/10 - float64(penalty[name])
		if s < 0 {
			s = 0
		}
		if s > ReviewScale {
			s = ReviewScale
		}
		scores[name] = s
	}
	return scores
}
