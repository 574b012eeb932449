package engine

import (
	"fmt"
	"time"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/checkpoint"
	"github.com/draftworks/docforge/internal/committee"
	"github.com/draftworks/docforge/internal/registry"
)

// State is a phase of the revision loop.
type State string

const (
	StateScheduling State = "scheduling"
	StateDrafting   State = "drafting"
	StateAssembling State = "assembling"
	StateGating     State = "gating"
	StateVoting     State = "voting"
	StateRevising   State = "revising"
	StatePublished  State = "published"
	StateAbandoned  State = "abandoned"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StatePublished || s == StateAbandoned
}

// transitions is the complete set of legal moves. Any move not listed
// here is a programming error, not a recoverable condition.
var transitions = map[State][]State{
	StateScheduling: {StateDrafting, StateAssembling, StateAbandoned},
	StateDrafting:   {StateScheduling, StateAbandoned},
	StateAssembling: {StateGating},
	StateGating:     {StateVoting, StateRevising, StateAbandoned},
	StateVoting:     {StatePublished, StateRevising, StateAbandoned},
	StateRevising:   {StateScheduling, StateAbandoned},
}

func legalTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// session is the mutable per-run state guarded by the engine mutex.
type session struct {
	ID          string
	Title       string
	State       State
	Attempt     int
	MaxAttempts int

	Document string
	Analysis *analysis.CompletenessAnalysis
	Tally    *committee.Tally
	Versions []checkpoint.VersionRecord
	Audit    []checkpoint.AuditEvent

	// ResumedFrom holds the checkpoint ref this run was restored from,
	// empty for a fresh session.
	ResumedFrom string

	// Degraded is set when checkpoint persistence failed and the run
	// continued on in-memory state only.
	Degraded bool

	// AbandonReason is filled when the session terminates unpublished.
	AbandonReason string
}

func (s *session) record(action, detail string) {
	s.Audit = append(s.Audit, checkpoint.AuditEvent{
		Time:   time.Now().UTC(),
		State:  string(s.State),
		Action: action,
		Detail: detail,
	})
}

// StatusView is a read-only snapshot of a running session, served by
// the status endpoint.
type StatusView struct {
	SessionID   string                  `json:"session_id"`
	Title       string                  `json:"title"`
	State       State                   `json:"state"`
	Attempt     int                     `json:"attempt"`
	MaxAttempts int                     `json:"max_attempts"`
	Score       float64                 `json:"score"`
	Sections    map[registry.Status]int `json:"sections"`
	ResumedFrom string                  `json:"resumed_from,omitempty"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Result is the final outcome of a session run.
type Result struct {
	SessionID string
	Title     string
	Outcome   State
	Attempt   int
	Score     float64
	Document  string
	Sections  []registry.Section
	Analysis  *analysis.CompletenessAnalysis
	Tally     *committee.Tally
	Versions  []checkpoint.VersionRecord
	Audit     []checkpoint.AuditEvent

	ResumedFrom   string
	Degraded      bool
	AbandonReason string
}

// Published reports whether the session reached publication.
func (r *Result) Published() bool {
	return r.Outcome == StatePublished
}

func (r *Result) String() string {
	return fmt.Sprintf("session %s %s after attempt %d (score %.1f)",
		r.SessionID, r.Outcome, r.Attempt, r.Score)
}
