package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/draftworks/docforge/internal/registry"
)

func sec(name string, status registry.Status, deps ...string) registry.Section {
	return registry.Section{Name: name, Status: status, Dependencies: deps}
}

func TestReady_NoDependencies(t *testing.T) {
	snap := []registry.Section{
		sec("a", registry.StatusPending),
		sec("b", registry.StatusPending),
	}
	assert.Equal(t, []string{"a", "b"}, Ready(snap))
}

func TestReady_BlockedByIncompleteDependency(t *testing.T) {
	snap := []registry.Section{
		sec("a", registry.StatusPending),
		sec("b", registry.StatusPending, "a"),
	}
	assert.Equal(t, []string{"a"}, Ready(snap))
}

func TestReady_ReleasesWhenDepsComplete(t *testing.T) {
	snap := []registry.Section{
		sec("a", registry.StatusCompleted),
		sec("b", registry.StatusPending, "a"),
		sec("c", registry.StatusPending, "a", "b"),
	}
	assert.Equal(t, []string{"b"}, Ready(snap))
}

func TestReady_IgnoresNonPending(t *testing.T) {
	snap := []registry.Section{
		sec("a", registry.StatusInProgress),
		sec("b", registry.StatusNeedsRevision),
		sec("c", registry.StatusCompleted),
	}
	assert.Empty(t, Ready(snap))
}

func TestReady_Deterministic(t *testing.T) {
	snap := []registry.Section{
		sec("a", registry.StatusCompleted),
		sec("b", registry.StatusPending, "a"),
		sec("c", registry.StatusPending),
		sec("d", registry.StatusPending, "a"),
	}
	first := Ready(snap)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Ready(snap))
	}
	assert.Equal(t, []string{"b", "c", "d"}, first, "canonical template order")
}

func TestReady_DrainsToEmpty(t *testing.T) {
	// Simulate the drafting fixed point: every round completes the ready
	// set, and the chain drains without revisits.
	snap := []registry.Section{
		sec("a", registry.StatusPending),
		sec("b", registry.StatusPending, "a"),
		sec("c", registry.StatusPending, "b"),
	}

	rounds := 0
	for Remaining(snap) {
		ready := Ready(snap)
		if len(ready) == 0 {
			t.Fatal("stalled with sections remaining")
		}
		for _, name := range ready {
			for i := range snap {
				if snap[i].Name == name {
					snap[i].Status = registry.StatusCompleted
				}
			}
		}
		rounds++
	}
	assert.Equal(t, 3, rounds)
	assert.Empty(t, Ready(snap))
}

func TestRemaining(t *testing.T) {
	assert.False(t, Remaining([]registry.Section{sec("a", registry.StatusCompleted)}))
	assert.True(t, Remaining([]registry.Section{sec("a", registry.StatusNeedsRevision)}))
	assert.False(t, Remaining(nil))
}
