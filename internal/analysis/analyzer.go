package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/retry"
)

// Analyzer scores an assembled document. Implementations must be pure for a
// fixed input: the same document text and rules yield the same analysis.
type Analyzer interface {
	Score(ctx context.Context, documentText string, rules RuleContext) (*CompletenessAnalysis, error)
}

// LLMAnalyzer scores documents through a generation backend asked for a
// structured JSON verdict. Temperature is pinned to zero for repeatability.
type LLMAnalyzer struct {
	provider llm.Provider
	retryCfg retry.Config
	logger   zerolog.Logger
}

// NewLLMAnalyzer creates an analyzer backed by the given provider.
func NewLLMAnalyzer(provider llm.Provider, retryCfg retry.Config, logger zerolog.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{
		provider: provider,
		retryCfg: retryCfg,
		logger:   logger.With().Str("component", "analysis").Logger(),
	}
}

const analyzerSystemPrompt = "You are a meticulous documentation quality analyst. " +
	"You score documents and report concrete, actionable findings."

// Score implements Analyzer.
func (a *LLMAnalyzer) Score(ctx context.Context, documentText string, rules RuleContext) (*CompletenessAnalysis, error) {
	prompt := buildAnalyzerPrompt(documentText, rules)

	var out CompletenessAnalysis
	corrective := false
	err := retry.Do(ctx, a.retryCfg, func(ctx context.Context) error {
		content := prompt
		if corrective {
			content += "\n\nYour previous response was not valid JSON. " +
				"Respond again with ONLY the JSON object, nothing else."
		}
		resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: analyzerSystemPrompt,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: content}},
		})
		if err != nil {
			return err
		}

		parsed, perr := parseAnalysis(resp.Text)
		if perr != nil {
			corrective = true
			return fmt.Errorf("%w: analysis: %v", derrors.ErrMalformedOutput, perr)
		}
		out = *parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug().
		Float64("score", out.OverallScore).
		Int("findings", len(out.Findings)).
		Msg("document scored")
	return &out, nil
}

func buildAnalyzerPrompt(documentText string, rules RuleContext) string {
	var sb strings.Builder

	sb.WriteString("Analyze the following document for completeness and quality.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\nPurpose: %s\n\n", rules.Topic, rules.Purpose)

	if len(rules.Goals) > 0 {
		sb.WriteString("Document goals:\n")
		for _, g := range rules.Goals {
			fmt.Fprintf(&sb, "- %s\n", g)
		}
		sb.WriteString("\n")
	}
	if len(rules.ScopeIncludes) > 0 {
		fmt.Fprintf(&sb, "Must cover: %s\n", strings.Join(rules.ScopeIncludes, "; "))
	}
	if len(rules.ScopeExcludes) > 0 {
		fmt.Fprintf(&sb, "Must NOT cover: %s\n", strings.Join(rules.ScopeExcludes, "; "))
	}
	fmt.Fprintf(&sb, "Declared sections: %s\n\n", strings.Join(rules.SectionNames, ", "))

	fmt.Fprintf(&sb, "Document:\n%s\n\n", documentText)

	sb.WriteString(`Score each dimension 0-100 (readability, coverage, goals, scope) and compute
an overall_score as their weighted composite. Report findings of these kinds:
- "readability": hard-to-follow prose (suggest a concrete rewording)
- "concept_gap": a concept the scope requires but the document misses
- "unfulfilled_goal": a stated goal the document does not achieve
- "scope_violation": content outside the declared scope

When a finding clearly belongs to one declared section, set "section" to that
exact section name; otherwise omit it.

Respond ONLY with valid JSON:
{
  "overall_score": 0,
  "subscores": {"readability": 0, "coverage": 0, "goals": 0, "scope": 0},
  "summary": "<one paragraph>",
  "findings": [
    {"kind": "readability", "section": "<name or omit>", "message": "...", "suggestion": "..."}
  ]
}`)

	return sb.String()
}

func parseAnalysis(text string) (*CompletenessAnalysis, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var out CompletenessAnalysis
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, err
	}
	if out.OverallScore < 0 || out.OverallScore > 100 {
		return nil, fmt.Errorf("overall_score %v out of range", out.OverallScore)
	}
	for i, f := range out.Findings {
		switch f.Kind {
		case KindReadability, KindConceptGap, KindUnfulfilledGoal, KindScopeViolation:
		default:
			return nil, fmt.Errorf("finding %d: unknown kind %q", i, f.Kind)
		}
	}
	return &out, nil
}
