// Package registry owns the section entities of a document run: their status,
// dependency lists, content, version history, and accumulated feedback. The
// registry is the only mutable shared state during a drafting round; every
// update is atomic per section.
package registry

import (
	"strings"
	"time"
)

// Status tracks a section's lifecycle.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusNeedsRevision Status = "needs_revision"
)

// ReviewStatus tracks whether a section has been scored by a reviewer.
type ReviewStatus string

const (
	ReviewUnreviewed ReviewStatus = "unreviewed"
	ReviewReviewed   ReviewStatus = "reviewed"
)

// Feedback accumulates corrective items for one section in three categories.
// Items append until the next successful revision consumes them, then clear.
type Feedback struct {
	ToRemove []string `json:"to_remove,omitempty"`
	ToAdd    []string `json:"to_add,omitempty"`
	ToChange []string `json:"to_change,omitempty"`
}

// Empty reports whether the ledger holds no items.
func (f Feedback) Empty() bool {
	return len(f.ToRemove) == 0 && len(f.ToAdd) == 0 && len(f.ToChange) == 0
}

// Count returns the total number of feedback items.
func (f Feedback) Count() int {
	return len(f.ToRemove) + len(f.ToAdd) + len(f.ToChange)
}

// Merge appends all items from other.
func (f *Feedback) Merge(other Feedback) {
	f.ToRemove = append(f.ToRemove, other.ToRemove...)
	f.ToAdd = append(f.ToAdd, other.ToAdd...)
	f.ToChange = append(f.ToChange, other.ToChange...)
}

// Render formats the ledger for inclusion in a revision prompt. Items are
// reproduced verbatim so the regenerated content can be checked against them.
func (f Feedback) Render() string {
	var sb strings.Builder
	writeGroup := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		for _, it := range items {
			sb.WriteString("- ")
			sb.WriteString(it)
			sb.WriteString("\n")
		}
	}
	writeGroup("Remove:", f.ToRemove)
	writeGroup("Add:", f.ToAdd)
	writeGroup("Change:", f.ToChange)
	return sb.String()
}

func (f Feedback) clone() Feedback {
	return Feedback{
		ToRemove: append([]string(nil), f.ToRemove...),
		ToAdd:    append([]string(nil), f.ToAdd...),
		ToChange: append([]string(nil), f.ToChange...),
	}
}

// Section is an independently draftable unit of the target document.
type Section struct {
	Name          string       `json:"name"`
	Status        Status       `json:"status"`
	Content       string       `json:"content,omitempty"`
	KeyPoints     []string     `json:"key_points,omitempty"`
	Dependencies  []string     `json:"dependencies,omitempty"`
	AudienceFocus []string     `json:"audience_focus,omitempty"`
	MaxPages      int          `json:"max_pages"`
	Version       int          `json:"version"`
	Feedback      Feedback     `json:"feedback"`
	ReviewStatus  ReviewStatus `json:"review_status"`

	// QualityScore is the section's 0-10 review score, valid once
	// ReviewStatus is reviewed.
	QualityScore float64 `json:"quality_score"`

	// ConsecutiveFailures counts back-to-back generation failures. The
	// engine aborts the session when it reaches the configured limit.
	ConsecutiveFailures int       `json:"consecutive_failures,omitempty"`
	LastModified        time.Time `json:"last_modified,omitempty"`
}

// WordCount returns the number of words in the section content.
func (s *Section) WordCount() int {
	return len(strings.Fields(s.Content))
}

func (s *Section) clone() Section {
	c := *s
	c.KeyPoints = append([]string(nil), s.KeyPoints...)
	c.Dependencies = append([]string(nil), s.Dependencies...)
	c.AudienceFocus = append([]string(nil), s.AudienceFocus...)
	c.Feedback = s.Feedback.clone()
	return c
}
