package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/checkpoint"
	"github.com/draftworks/docforge/internal/committee"
	"github.com/draftworks/docforge/internal/engine"
	"github.com/draftworks/docforge/internal/registry"
)

func sampleResult(published bool) *engine.Result {
	outcome := engine.StatePublished
	reason := ""
	if !published {
		outcome = engine.StateAbandoned
		reason = "revision budget exhausted after attempt 3 of 3"
	}
	return &engine.Result{
		SessionID: "sess-42",
		Title:     "Database Standard",
		Outcome:   outcome,
		Attempt:   2,
		Score:     81.5,
		Document:  "# Database Standard\n\n## intro\n\ntext\n",
		Sections: []registry.Section{
			{Name: "intro", Status: registry.StatusCompleted, Content: "one two three", Version: 2, QualityScore: 8.2},
			{Name: "body", Status: registry.StatusNeedsRevision, Content: "x", Version: 1,
				Feedback: registry.Feedback{ToAdd: []string{"cover failover"}}},
		},
		Analysis: &analysis.CompletenessAnalysis{OverallScore: 81.5},
		Tally: &committee.Tally{InFavor: 2, Abstain: 1, Votes: []committee.Vote{
			{Reviewer: "dba", Approval: committee.InFavor},
			{Reviewer: "sec", Approval: committee.Abstain, CompletenessConcerns: []string{"no audit section"}},
		}},
		Versions:      []checkpoint.VersionRecord{{Attempt: 1, Score: 60, Ref: "sess-42/1"}, {Attempt: 2, Score: 81.5, Ref: "sess-42/2"}},
		AbandonReason: reason,
	}
}

func TestRender_PublishedReport(t *testing.T) {
	out := Render(sampleResult(true))

	assert.Contains(t, out, "# Session Report: Database Standard")
	assert.Contains(t, out, "**published**")
	assert.Contains(t, out, "Completeness score: 81.5")
	assert.Contains(t, out, "Attempts used: 2")
	assert.Contains(t, out, "2 in favor, 0 against, 1 abstained")
	assert.Contains(t, out, "concern: no audit section")
	assert.Contains(t, out, "| intro | completed | 2 | 3 | 8.2 |")
	assert.Contains(t, out, "- cover failover")
	assert.Contains(t, out, "attempt 1: score 60.0")
}

func TestRender_AbandonedReport(t *testing.T) {
	out := Render(sampleResult(false))
	assert.Contains(t, out, "**abandoned**")
	assert.Contains(t, out, "revision budget exhausted")
}

func TestWrite_PublishedArtifacts(t *testing.T) {
	outDir := t.TempDir()
	w := NewWriter(outDir, zerolog.Nop())

	dir, err := w.Write(sampleResult(true))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "sess-42"), dir)

	doc, err := os.ReadFile(filepath.Join(dir, "document.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "## intro")

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "sess-42", meta.SessionID)
	assert.Equal(t, "published", meta.Outcome)
	assert.Equal(t, 2, meta.InFavor)
	require.Len(t, meta.Sections, 2)
	assert.Equal(t, 1, meta.Sections[1].Feedback)

	_, err = os.Stat(filepath.Join(dir, "report.md"))
	assert.NoError(t, err)
}

func TestWrite_AbandonedSkipsDocument(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())

	dir, err := w.Write(sampleResult(false))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "document.md"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "report.md"))
	assert.NoError(t, err)
}
