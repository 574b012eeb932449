// Package engine drives a document session through the revision loop:
// schedule ready sections, draft them in parallel, assemble, score at
// the quality gate, and either put the document to a committee vote or
// reopen sections for revision, until publication or the attempt
// budget runs out.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/checkpoint"
	"github.com/draftworks/docforge/internal/committee"
	"github.com/draftworks/docforge/internal/draft"
	"github.com/draftworks/docforge/internal/gate"
	"github.com/draftworks/docforge/internal/metrics"
	"github.com/draftworks/docforge/internal/notify"
	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/schedule"
	"github.com/draftworks/docforge/internal/template"
)

// Options tune the revision loop.
type Options struct {
	// MaxParallel caps concurrent section drafts per round.
	MaxParallel int

	// MaxAttempts is the total revision budget, counting the first pass.
	MaxAttempts int

	// SupermajorityFloor is the in-favor count a low-confidence document
	// needs to pass the committee.
	SupermajorityFloor int

	// SectionFailureLimit aborts the session when one section fails this
	// many consecutive draft attempts.
	SectionFailureLimit int
}

func (o *Options) defaults() {
	if o.MaxParallel <= 0 {
		o.MaxParallel = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.SupermajorityFloor <= 0 {
		o.SupermajorityFloor = 4
	}
	if o.SectionFailureLimit <= 0 {
		o.SectionFailureLimit = 3
	}
}

// Deps are the collaborators the engine orchestrates. Store, Notifier,
// and Metrics are optional.
type Deps struct {
	Template  *template.Template
	Registry  *registry.Registry
	Processor *draft.Processor
	Gate      *gate.Gate
	Router    *gate.Router
	Panel     *committee.Panel
	Store     *checkpoint.Store
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
}

// Engine runs one document session.
type Engine struct {
	tmpl      *template.Template
	reg       *registry.Registry
	processor *draft.Processor
	gate      *gate.Gate
	router    *gate.Router
	panel     *committee.Panel
	store     *checkpoint.Store
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	opts      Options
	logger    zerolog.Logger

	mu    sync.RWMutex
	sess  session
	ready []string
}

// New creates an Engine. Missing optional deps get no-op defaults.
func New(deps Deps, opts Options, logger zerolog.Logger) *Engine {
	opts.defaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Engine{
		tmpl:      deps.Template,
		reg:       deps.Registry,
		processor: deps.Processor,
		gate:      deps.Gate,
		router:    deps.Router,
		panel:     deps.Panel,
		store:     deps.Store,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		opts:      opts,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// Resume restores a session from a checkpoint snapshot. It must be
// called before Run.
func (e *Engine) Resume(snap *checkpoint.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reg.Restore(snap.Sections)
	e.sess = session{
		ID:          snap.SessionID,
		Title:       snap.Title,
		Attempt:     snap.Attempt,
		MaxAttempts: e.opts.MaxAttempts,
		Analysis:    snap.Analysis,
		Tally:       snap.Tally,
		Versions:    snap.Versions,
		Audit:       snap.Audit,
		ResumedFrom: snap.Ref(),
	}

	switch {
	case snap.Status == checkpoint.SessionPublished:
		e.sess.State = StatePublished
	case snap.NextState != "":
		e.sess.State = State(snap.NextState)
	default:
		e.sess.State = StateScheduling
	}
	if e.sess.State == StateVoting || e.sess.State == StatePublished {
		e.sess.Document = assemble(e.sess.Title, snap.Sections)
	}
	e.sess.record("session resumed", "from checkpoint "+snap.Ref())

	e.logger.Info().
		Str("session_id", snap.SessionID).
		Str("ref", snap.Ref()).
		Str("state", string(e.sess.State)).
		Msg("session restored from checkpoint")
}

// Run executes the loop until a terminal state. A cancelled context
// stops the run between steps; already-saved checkpoints make the
// session resumable.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.sess.State == "" {
		e.sess = session{
			ID:          uuid.NewString(),
			Title:       e.tmpl.Title,
			State:       StateScheduling,
			Attempt:     1,
			MaxAttempts: e.opts.MaxAttempts,
		}
		e.sess.record("session started", e.tmpl.Topic)
	}
	id := e.sess.ID
	e.mu.Unlock()

	e.logger.Info().
		Str("session_id", id).
		Int("sections", len(e.tmpl.Sections)).
		Int("max_attempts", e.opts.MaxAttempts).
		Msg("session running")

	for {
		if err := ctx.Err(); err != nil {
			e.note("session interrupted", err.Error())
			return nil, err
		}

		switch e.state() {
		case StateScheduling:
			e.stepScheduling()
		case StateDrafting:
			if err := e.stepDrafting(ctx); err != nil {
				return nil, err
			}
		case StateAssembling:
			e.stepAssembling()
		case StateGating:
			e.stepGating(ctx)
		case StateVoting:
			e.stepVoting(ctx)
		case StateRevising:
			e.stepRevising()
		case StatePublished, StateAbandoned:
			return e.finish(ctx), nil
		default:
			return nil, fmt.Errorf("engine: unknown state %q", e.state())
		}
	}
}

func (e *Engine) stepScheduling() {
	snap := e.reg.Snapshot()
	ready := schedule.Ready(snap)
	if len(ready) > 0 {
		e.ready = ready
		e.transition(StateDrafting, "sections released", strings.Join(ready, ", "))
		return
	}
	if !schedule.Remaining(snap) {
		e.transition(StateAssembling, "all sections completed", "")
		return
	}
	// Nothing ready yet sections remain: the template validator rules
	// out cycles, so this indicates corrupted state.
	e.abandon("scheduler stalled with incomplete sections")
}

func (e *Engine) stepDrafting(ctx context.Context) error {
	results := e.processor.Process(ctx, e.reg, e.ready, e.opts.MaxParallel)

	drafted := 0
	for _, name := range e.ready {
		res, ok := results[name]
		if !ok {
			continue // beyond the parallelism cap, next round picks it up
		}
		if res.Err != nil {
			e.metrics.RecordDraft(name, "error", res.Elapsed.Seconds())
			e.note("draft failed", fmt.Sprintf("%s: %v", name, res.Err))
			if err := e.reg.NoteDraftFailure(name,
				fmt.Sprintf("the previous draft attempt failed (%v); produce a complete draft", res.Err)); err != nil {
				e.logger.Error().Err(err).Str("section", name).Msg("failure note rejected")
			}
			if sec, found := e.reg.Get(name); found && sec.ConsecutiveFailures >= e.opts.SectionFailureLimit {
				e.abandon(fmt.Sprintf("section %q failed %d consecutive draft attempts",
					name, sec.ConsecutiveFailures))
				return nil
			}
			continue
		}
		drafted++
		e.metrics.RecordDraft(name, "ok", res.Elapsed.Seconds())
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	e.transition(StateScheduling, "draft round finished", fmt.Sprintf("%d drafted", drafted))
	return nil
}

func (e *Engine) stepAssembling() {
	doc := assemble(e.title(), e.reg.Snapshot())

	e.mu.Lock()
	e.sess.Document = doc
	e.mu.Unlock()

	e.transition(StateGating, "document assembled", fmt.Sprintf("%d words", len(strings.Fields(doc))))
}

func (e *Engine) stepGating(ctx context.Context) {
	an, decision, err := e.gate.Evaluate(ctx, e.document(), e.rules(), e.reg)
	if err != nil {
		// The gate failed closed; the synthetic analysis routes the run
		// into revision.
		e.logger.Warn().Err(err).Msg("analyzer failed, gate closed")
		e.note("analyzer failed", err.Error())
	}

	e.mu.Lock()
	e.sess.Analysis = an
	e.mu.Unlock()

	// Sections the gate just flagged are already needs_revision; only the
	// surviving completed ones carry a review score into the report.
	scores := e.gate.SectionScores(an, e.tmpl.SectionNames())
	for _, s := range e.reg.Snapshot() {
		if s.Status == registry.StatusCompleted {
			_ = e.reg.SetReview(s.Name, scores[s.Name])
		}
	}

	e.metrics.RecordGate(string(decision), an.OverallScore)
	next := StateVoting
	if decision == gate.DecisionNeedsImprovement {
		next = StateRevising
		e.metrics.RecordFeedback("gate", len(an.Findings))
	}

	ref := e.saveCheckpoint(checkpoint.BoundaryGate, next, checkpoint.SessionInProgress)

	e.mu.Lock()
	e.sess.Versions = append(e.sess.Versions, checkpoint.VersionRecord{
		Attempt:   e.sess.Attempt,
		Score:     an.OverallScore,
		Ref:       ref,
		Timestamp: time.Now().UTC(),
	})
	e.mu.Unlock()

	e.transition(next, "gate decision", fmt.Sprintf("%s (score %.1f)", decision, an.OverallScore))
}

func (e *Engine) stepVoting(ctx context.Context) {
	votes, err := e.panel.Collect(ctx, e.document(), e.rules())
	if err != nil {
		// Failed reviewers already count as abstentions in the tally.
		e.logger.Warn().Err(err).Msg("committee partially failed")
		e.note("committee degraded", err.Error())
	}

	tally := committee.TallyVotes(votes)
	outcome := committee.Aggregate(tally, e.score(), e.opts.SupermajorityFloor)

	e.mu.Lock()
	e.sess.Tally = &tally
	e.mu.Unlock()

	e.metrics.RecordVote(string(outcome))
	detail := fmt.Sprintf("%d in favor, %d against, %d abstained",
		tally.InFavor, tally.Against, tally.Abstain)

	if outcome == committee.Approved {
		e.saveCheckpoint(checkpoint.BoundaryVote, StatePublished, checkpoint.SessionPublished)
		e.transition(StatePublished, "committee approved", detail)
		return
	}

	routed := committee.MergeFeedback(e.reg, e.router, votes)
	e.metrics.RecordFeedback("committee", routed)
	e.saveCheckpoint(checkpoint.BoundaryVote, StateRevising, checkpoint.SessionInProgress)
	e.transition(StateRevising, "committee rejected", detail)
}

func (e *Engine) stepRevising() {
	e.mu.Lock()
	attempt := e.sess.Attempt
	e.mu.Unlock()

	if attempt >= e.opts.MaxAttempts {
		e.abandon(fmt.Sprintf("revision budget exhausted after attempt %d of %d",
			attempt, e.opts.MaxAttempts))
		return
	}

	e.mu.Lock()
	e.sess.Attempt++
	attempt = e.sess.Attempt
	e.mu.Unlock()

	reopened := e.reg.ResetForRevision()
	if reopened == 0 {
		// A rejection with no routed remarks still has to unlock work.
		_ = e.reg.AddFeedback(e.tmpl.DefaultSection, registry.Feedback{
			ToChange: []string{"address the committee's rejection of the previous revision"},
		})
		reopened = e.reg.ResetForRevision()
	}

	e.transition(StateScheduling, "revision started",
		fmt.Sprintf("attempt %d, %d sections reopened", attempt, reopened))
}

func (e *Engine) finish(ctx context.Context) *Result {
	e.mu.RLock()
	sess := e.sess
	e.mu.RUnlock()

	res := &Result{
		SessionID:     sess.ID,
		Title:         sess.Title,
		Outcome:       sess.State,
		Attempt:       sess.Attempt,
		Document:      sess.Document,
		Sections:      e.reg.Snapshot(),
		Analysis:      sess.Analysis,
		Tally:         sess.Tally,
		Versions:      sess.Versions,
		Audit:         sess.Audit,
		ResumedFrom:   sess.ResumedFrom,
		Degraded:      sess.Degraded,
		AbandonReason: sess.AbandonReason,
	}
	if sess.Analysis != nil {
		res.Score = sess.Analysis.OverallScore
	}

	if e.store != nil && sess.State == StateAbandoned {
		if err := e.store.SetStatus(sess.ID, checkpoint.SessionAbandoned); err != nil {
			// No checkpoint was ever saved for very early aborts.
			e.logger.Debug().Err(err).Msg("could not mark session abandoned")
		}
	}

	e.metrics.RecordFinish(sess.Attempt)
	if err := e.notifier.Notify(ctx, notify.Event{
		SessionID: sess.ID,
		Title:     sess.Title,
		Outcome:   string(sess.State),
		Score:     res.Score,
		Attempts:  sess.Attempt,
		Message:   sess.AbandonReason,
	}); err != nil {
		e.logger.Warn().Err(err).Msg("outcome notification failed")
	}

	e.logger.Info().
		Str("session_id", sess.ID).
		Str("outcome", string(sess.State)).
		Int("attempts", sess.Attempt).
		Float64("score", res.Score).
		Msg("session finished")
	return res
}

// Status returns a live view of the session for the status endpoint.
func (e *Engine) Status() StatusView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v := StatusView{
		SessionID:   e.sess.ID,
		Title:       e.sess.Title,
		State:       e.sess.State,
		Attempt:     e.sess.Attempt,
		MaxAttempts: e.sess.MaxAttempts,
		Sections:    e.reg.CountByStatus(),
		ResumedFrom: e.sess.ResumedFrom,
		UpdatedAt:   time.Now().UTC(),
	}
	if e.sess.Analysis != nil {
		v.Score = e.sess.Analysis.OverallScore
	}
	return v
}

func (e *Engine) saveCheckpoint(boundary string, next State, status string) string {
	if e.store == nil {
		return ""
	}

	e.mu.RLock()
	snap := &checkpoint.Snapshot{
		SessionID:   e.sess.ID,
		Title:       e.sess.Title,
		Status:      status,
		Attempt:     e.sess.Attempt,
		MaxAttempts: e.sess.MaxAttempts,
		Boundary:    boundary,
		NextState:   string(next),
		Sections:    e.reg.Snapshot(),
		Analysis:    e.sess.Analysis,
		Tally:       e.sess.Tally,
		Versions:    e.sess.Versions,
		Audit:       e.sess.Audit,
	}
	e.mu.RUnlock()

	ref, err := e.store.Save(snap)
	if err != nil {
		e.logger.Warn().Err(err).Msg("checkpoint save failed, retrying once")
		ref, err = e.store.Save(snap)
	}
	if err != nil {
		e.mu.Lock()
		e.sess.Degraded = true
		e.mu.Unlock()
		e.note("checkpoint degraded", "persistence failed, continuing in memory: "+err.Error())
		return ""
	}
	return ref
}

func (e *Engine) transition(to State, action, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.sess.State
	if !legalTransition(from, to) {
		e.logger.Error().
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("illegal state transition")
	}
	e.sess.State = to
	e.sess.record(action, detail)

	e.logger.Debug().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("action", action).
		Str("detail", detail).
		Msg("state transition")
}

func (e *Engine) abandon(reason string) {
	e.mu.Lock()
	e.sess.AbandonReason = reason
	e.mu.Unlock()
	e.transition(StateAbandoned, "session abandoned", reason)
}

func (e *Engine) note(action, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.record(action, detail)
}

func (e *Engine) state() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.State
}

func (e *Engine) title() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Title
}

func (e *Engine) document() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Document
}

func (e *Engine) score() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess.Analysis == nil {
		return 0
	}
	return e.sess.Analysis.OverallScore
}

func (e *Engine) rules() analysis.RuleContext {
	return analysis.RuleContext{
		Topic:         e.tmpl.Topic,
		Purpose:       e.tmpl.Purpose,
		Goals:         e.tmpl.Goals,
		ScopeIncludes: e.tmpl.Scope.Includes,
		ScopeExcludes: e.tmpl.Scope.Excludes,
		SectionNames:  e.tmpl.SectionNames(),
	}
}

// assemble renders the completed sections into one markdown document in
// canonical template order.
func assemble(title string, snapshot []registry.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for i := range snapshot {
		s := &snapshot[i]
		if s.Status != registry.StatusCompleted {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.Name, strings.TrimSpace(s.Content))
	}
	return b.String()
}
