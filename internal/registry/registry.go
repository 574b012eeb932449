package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/template"
)

// Registry is the data store of section entities. It is safe for concurrent
// use; during a drafting round each worker writes only to its own section.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	sections map[string]*Section
	logger   zerolog.Logger
}

// FromTemplate builds a Registry with every declared section pending.
func FromTemplate(t *template.Template, logger zerolog.Logger) *Registry {
	r := &Registry{
		sections: make(map[string]*Section, len(t.Sections)),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
	for _, spec := range t.Sections {
		r.order = append(r.order, spec.Name)
		r.sections[spec.Name] = &Section{
			Name:          spec.Name,
			Status:        StatusPending,
			Dependencies:  append([]string(nil), spec.DependsOn...),
			AudienceFocus: append([]string(nil), spec.AudienceFocus...),
			MaxPages:      spec.MaxPages,
			ReviewStatus:  ReviewUnreviewed,
		}
	}
	return r
}

// Snapshot returns deep copies of all sections in canonical template order.
func (r *Registry) Snapshot() []Section {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Section, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sections[name].clone())
	}
	return out
}

// Get returns a copy of the named section.
func (r *Registry) Get(name string) (Section, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sections[name]
	if !ok {
		return Section{}, false
	}
	return s.clone(), true
}

// Names returns section names in canonical order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// BeginDraft transitions a section to in_progress and returns a copy for the
// worker. It enforces the dependency invariant: a pending section may start
// only when every dependency is completed.
func (r *Registry) BeginDraft(name string) (Section, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return Section{}, fmt.Errorf("registry: unknown section %q", name)
	}
	if s.Status != StatusPending {
		return Section{}, fmt.Errorf("registry: section %q is %s, not pending", name, s.Status)
	}
	for _, dep := range s.Dependencies {
		if d, ok := r.sections[dep]; !ok || d.Status != StatusCompleted {
			return Section{}, fmt.Errorf("registry: section %q dependency %q not completed", name, dep)
		}
	}
	s.Status = StatusInProgress
	return s.clone(), nil
}

// CompleteDraft commits a successful draft: content and key points are
// replaced, the version increments, consumed feedback clears, and the section
// becomes completed. Applied exactly once per round per section.
func (r *Registry) CompleteDraft(name, content string, keyPoints []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return fmt.Errorf("registry: unknown section %q", name)
	}
	if s.Status != StatusInProgress {
		return fmt.Errorf("registry: section %q is %s, not in_progress", name, s.Status)
	}
	s.Content = content
	s.KeyPoints = append([]string(nil), keyPoints...)
	s.Version++
	s.Status = StatusCompleted
	s.Feedback = Feedback{}
	s.ReviewStatus = ReviewUnreviewed
	s.ConsecutiveFailures = 0
	s.LastModified = time.Now().UTC()

	r.logger.Debug().Str("section", name).Int("version", s.Version).Msg("draft committed")
	return nil
}

// RevertDraft returns an in_progress section to the given prior status after
// a failed or cancelled generation. Content, version, and feedback are
// untouched; the failure counter increments.
func (r *Registry) RevertDraft(name string, prior Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return fmt.Errorf("registry: unknown section %q", name)
	}
	if s.Status != StatusInProgress {
		return fmt.Errorf("registry: section %q is %s, not in_progress", name, s.Status)
	}
	s.Status = prior
	s.ConsecutiveFailures++
	return nil
}

// AddFeedback appends items to the section's ledger and forces it to
// needs_revision. A completed section re-enters the revision loop here.
func (r *Registry) AddFeedback(name string, delta Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return fmt.Errorf("registry: unknown section %q", name)
	}
	if delta.Empty() {
		return nil
	}
	s.Feedback.Merge(delta)
	s.Status = StatusNeedsRevision

	r.logger.Debug().Str("section", name).Int("items", delta.Count()).Msg("feedback routed")
	return nil
}

// NoteDraftFailure appends a corrective note to the section's ledger without
// changing its status. A failed section stays pending so the scheduler can
// release it again; the note rides along in the next draft prompt.
func (r *Registry) NoteDraftFailure(name, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return fmt.Errorf("registry: unknown section %q", name)
	}
	s.Feedback.Merge(Feedback{ToChange: []string{note}})
	return nil
}

// SetReview records a review score for a section. Review scores live on a
// 0-10 scale; anything outside it is rejected.
func (r *Registry) SetReview(name string, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sections[name]
	if !ok {
		return fmt.Errorf("registry: unknown section %q", name)
	}
	if score < 0 || score > 10 {
		return fmt.Errorf("registry: review score %.1f outside the 0-10 scale", score)
	}
	s.ReviewStatus = ReviewReviewed
	s.QualityScore = score
	return nil
}

// ResetForRevision moves every needs_revision section back to pending so the
// scheduler can release it again. Attached feedback is retained for the
// revision prompt.
func (r *Registry) ResetForRevision() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sections {
		if s.Status == StatusNeedsRevision {
			s.Status = StatusPending
			n++
		}
	}
	return n
}

// CountByStatus returns the number of sections per status.
func (r *Registry) CountByStatus() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Status]int, 4)
	for _, s := range r.sections {
		counts[s.Status]++
	}
	return counts
}

// AllCompleted reports whether every section is completed.
func (r *Registry) AllCompleted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sections {
		if s.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Restore replaces the registry contents with a checkpoint snapshot. Order
// follows the snapshot slice.
func (r *Registry) Restore(snapshot []Section) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.sections = make(map[string]*Section, len(snapshot))
	for i := range snapshot {
		s := snapshot[i].clone()
		r.order = append(r.order, s.Name)
		r.sections[s.Name] = &s
	}
}
