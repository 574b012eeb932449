// Package schedule computes the ready set: pending sections whose
// dependencies are all completed in the same registry snapshot.
package schedule

import (
	"github.com/draftworks/docforge/internal/registry"
)

// Ready returns the names of sections that may be drafted this round, in
// snapshot (canonical template) order. The result is a pure function of the
// snapshot: identical snapshots yield identical ready sets regardless of call
// order. Excess ready sections beyond the processor's parallelism cap simply
// appear again in the next round's snapshot, FIFO by template order, with no
// further starvation policy.
func Ready(snapshot []registry.Section) []string {
	completed := make(map[string]bool, len(snapshot))
	for _, s := range snapshot {
		if s.Status == registry.StatusCompleted {
			completed[s.Name] = true
		}
	}

	var ready []string
	for _, s := range snapshot {
		if s.Status != registry.StatusPending {
			continue
		}
		ok := true
		for _, dep := range s.Dependencies {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s.Name)
		}
	}
	return ready
}

// Remaining reports whether any section still needs work: pending,
// in_progress, or needs_revision. When Remaining is false and Ready is empty
// the document is fully drafted.
func Remaining(snapshot []registry.Section) bool {
	for _, s := range snapshot {
		if s.Status != registry.StatusCompleted {
			return true
		}
	}
	return false
}
