// Package report renders the final session report, the published
// document, and a machine-readable metadata record.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/engine"
	"github.com/draftworks/docforge/internal/registry"
)

// Metadata is the machine-readable outcome record written next to the
// report.
type Metadata struct {
	SessionID   string            `json:"session_id"`
	Title       string            `json:"title"`
	Outcome     string            `json:"outcome"`
	Score       float64           `json:"score"`
	Attempts    int               `json:"attempts"`
	Sections    []SectionMetadata `json:"sections"`
	InFavor     int               `json:"in_favor,omitempty"`
	Against     int               `json:"against,omitempty"`
	Abstain     int               `json:"abstain,omitempty"`
	ResumedFrom string            `json:"resumed_from,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SectionMetadata summarizes one section in the metadata record.
type SectionMetadata struct {
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Version  int     `json:"version"`
	Words    int     `json:"words"`
	Score    float64 `json:"score"`
	Feedback int     `json:"open_feedback,omitempty"`
}

// Writer emits session artifacts into an output directory.
type Writer struct {
	outDir string
	logger zerolog.Logger
}

// NewWriter creates a Writer rooted at outDir.
func NewWriter(outDir string, logger zerolog.Logger) *Writer {
	return &Writer{
		outDir: outDir,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// Write emits the report, the metadata record, and, for a published
// session, the assembled document. It returns the session directory.
func (w *Writer) Write(res *engine.Result) (string, error) {
	dir := filepath.Join(w.outDir, res.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if res.Published() {
		if err := os.WriteFile(filepath.Join(dir, "document.md"), []byte(res.Document), 0o644); err != nil {
			return "", fmt.Errorf("failed to write document: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(Render(res)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	meta, err := json.MarshalIndent(buildMetadata(res), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), meta, 0o644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	w.logger.Info().
		Str("session_id", res.SessionID).
		Str("dir", dir).
		Bool("published", res.Published()).
		Msg("artifacts written")
	return dir, nil
}

func buildMetadata(res *engine.Result) Metadata {
	m := Metadata{
		SessionID:   res.SessionID,
		Title:       res.Title,
		Outcome:     string(res.Outcome),
		Score:       res.Score,
		Attempts:    res.Attempt,
		ResumedFrom: res.ResumedFrom,
		Degraded:    res.Degraded,
		GeneratedAt: time.Now().UTC(),
	}
	if res.Tally != nil {
		m.InFavor = res.Tally.InFavor
		m.Against = res.Tally.Against
		m.Abstain = res.Tally.Abstain
	}
	for i := range res.Sections {
		s := &res.Sections[i]
		m.Sections = append(m.Sections, SectionMetadata{
			Name:     s.Name,
			Status:   string(s.Status),
			Version:  s.Version,
			Words:    s.WordCount(),
			Score:    s.QualityScore,
			Feedback: s.Feedback.Count(),
		})
	}
	return m
}

// Render produces the human-readable session report.
func Render(res *engine.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session Report: %s\n\n", res.Title)
	fmt.Fprintf(&b, "- Session: `%s`\n", res.SessionID)
	fmt.Fprintf(&b, "- Outcome: **%s**\n", res.Outcome)
	fmt.Fprintf(&b, "- Completeness score: %.1f\n", res.Score)
	fmt.Fprintf(&b, "- Attempts used: %d\n", res.Attempt)
	if res.ResumedFrom != "" {
		fmt.Fprintf(&b, "- Resumed from checkpoint `%s`\n", res.ResumedFrom)
	}
	if res.AbandonReason != "" {
		fmt.Fprintf(&b, "- Abandoned: %s\n", res.AbandonReason)
	}
	if res.Degraded {
		b.WriteString("- WARNING: checkpoint persistence failed during this run; the session is not resumable\n")
	}
	b.WriteString("\n")

	if res.Tally != nil {
		fmt.Fprintf(&b, "## Committee\n\n%d in favor, %d against, %d abstained\n\n",
			res.Tally.InFavor, res.Tally.Against, res.Tally.Abstain)
		for _, v := range res.Tally.Votes {
			fmt.Fprintf(&b, "- %s: %s\n", v.Reviewer, v.Approval)
			for _, c := range v.CompletenessConcerns {
				fmt.Fprintf(&b, "  - concern: %s\n", c)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Sections\n\n")
	b.WriteString("| Section | Status | Version | Words | Score |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i := range res.Sections {
		s := &res.Sections[i]
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %.1f |\n",
			s.Name, s.Status, s.Version, s.WordCount(), s.QualityScore)
	}
	b.WriteString("\n")

	if open := outstanding(res.Sections); len(open) > 0 {
		b.WriteString("## Outstanding Feedback\n\n")
		for _, s := range open {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.Name, s.Feedback.Render())
		}
	}

	if len(res.Versions) > 0 {
		b.WriteString("## Revision History\n\n")
		for _, v := range res.Versions {
			fmt.Fprintf(&b, "- attempt %d: score %.1f", v.Attempt, v.Score)
			if v.Ref != "" {
				fmt.Fprintf(&b, " (checkpoint `%s`)", v.Ref)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(res.Audit) > 0 {
		b.WriteString("## Audit Trail\n\n")
		for _, ev := range res.Audit {
			fmt.Fprintf(&b, "- %s [%s] %s", ev.Time.Format(time.RFC3339), ev.State, ev.Action)
			if ev.Detail != "" {
				fmt.Fprintf(&b, ": %s", ev.Detail)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func outstanding(sections []registry.Section) []*registry.Section {
	var out []*registry.Section
	for i := range sections {
		if !sections[i].Feedback.Empty() {
			out = append(out, &sections[i])
		}
	}
	return out
}
