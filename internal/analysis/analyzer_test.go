package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/retry"
)

const goodAnalysis = `{
  "overall_score": 72.5,
  "subscores": {"readability": 80, "coverage": 70, "goals": 75, "scope": 65},
  "summary": "Solid draft.",
  "findings": [
    {"kind": "concept_gap", "section": "Operations", "message": "no restore drill", "suggestion": "add one"}
  ]
}`

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestScore_ParsesAnalysis(t *testing.T) {
	a := NewLLMAnalyzer(llm.NewMockProvider(goodAnalysis), fastRetry(), zerolog.Nop())

	out, err := a.Score(context.Background(), "doc text", RuleContext{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, 72.5, out.OverallScore)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, KindConceptGap, out.Findings[0].Kind)
	assert.Equal(t, "Operations", out.Findings[0].Section)
}

func TestScore_CorrectiveRetryOnProse(t *testing.T) {
	mock := llm.NewMockProvider("here is my analysis in prose", goodAnalysis)
	a := NewLLMAnalyzer(mock, fastRetry(), zerolog.Nop())

	out, err := a.Score(context.Background(), "doc", RuleContext{})
	require.NoError(t, err)
	assert.Equal(t, 72.5, out.OverallScore)

	require.Len(t, mock.Requests, 2)
	assert.Contains(t, mock.Requests[1].Messages[0].Content, "was not valid JSON")
}

func TestScore_ExhaustedRetriesSurfaceMalformed(t *testing.T) {
	a := NewLLMAnalyzer(llm.NewMockProvider("still prose"), fastRetry(), zerolog.Nop())

	_, err := a.Score(context.Background(), "doc", RuleContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, derrors.ErrMalformedOutput)
}

func TestParseAnalysis_Validation(t *testing.T) {
	_, err := parseAnalysis(`{"overall_score": 120}`)
	assert.Error(t, err, "score out of range")

	_, err = parseAnalysis(`{"overall_score": 50, "findings": [{"kind": "vibes"}]}`)
	assert.Error(t, err, "unknown finding kind")

	out, err := parseAnalysis("```json\n" + goodAnalysis + "\n```")
	require.NoError(t, err)
	assert.Equal(t, 72.5, out.OverallScore)
}

func TestBuildAnalyzerPrompt_CarriesRules(t *testing.T) {
	prompt := buildAnalyzerPrompt("THE DOCUMENT", RuleContext{
		Topic:         "db standard",
		Purpose:       "standardize",
		Goals:         []string{"name approved engines"},
		ScopeIncludes: []string{"relational"},
		ScopeExcludes: []string{"queues"},
		SectionNames:  []string{"Intro", "Ops"},
	})
	assert.Contains(t, prompt, "db standard")
	assert.Contains(t, prompt, "name approved engines")
	assert.Contains(t, prompt, "Must NOT cover: queues")
	assert.Contains(t, prompt, "Intro, Ops")
	assert.Contains(t, prompt, "THE DOCUMENT")
}
