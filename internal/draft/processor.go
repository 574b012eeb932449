// Package draft implements the concurrent section processor: it drafts or
// revises up to maxParallel ready sections per round, each worker owning
// exactly one section's registry entry.
package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/retry"
	"github.com/draftworks/docforge/internal/template"
)

// Result is the per-section outcome of one round.
type Result struct {
	Name      string
	Content   string
	KeyPoints []string
	Version   int
	Err       error
	Elapsed   time.Duration
}

// Processor drafts sections against a generation backend.
type Processor struct {
	provider llm.Provider
	tmpl     *template.Template
	retryCfg retry.Config
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewProcessor creates a Processor. timeout bounds each generation call;
// zero means no per-call timeout beyond the context's.
func NewProcessor(provider llm.Provider, tmpl *template.Template, retryCfg retry.Config, timeout time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		provider: provider,
		tmpl:     tmpl,
		retryCfg: retryCfg,
		timeout:  timeout,
		logger:   logger.With().Str("component", "draft").Logger(),
	}
}

// Process drafts up to maxParallel sections from the ready set. Excess ready
// sections are left pending for the next scheduling round. All dispatched
// drafts are joined before returning: one section's failure never cancels its
// siblings, and each section's registry update is applied exactly once. On
// failure (including context cancellation) a section reverts to pending, so
// nothing is ever left in_progress.
func (p *Processor) Process(ctx context.Context, reg *registry.Registry, ready []string, maxParallel int) map[string]Result {
	if maxParallel < 1 {
		maxParallel = 1
	}
	round := ready
	if len(round) > maxParallel {
		round = round[:maxParallel]
	}

	results := make(map[string]Result, len(round))
	if len(round) == 0 {
		return results
	}

	snapshot := reg.Snapshot()

	var wg sync.WaitGroup
	resCh := make(chan Result, len(round))

	for _, name := range round {
		sec, err := reg.BeginDraft(name)
		if err != nil {
			results[name] = Result{Name: name, Err: err}
			continue
		}

		wg.Add(1)
		go func(sec registry.Section) {
			defer wg.Done()
			start := time.Now()
			content, keyPoints, err := p.draftOne(ctx, sec, snapshot)
			resCh <- Result{
				Name:      sec.Name,
				Content:   content,
				KeyPoints: keyPoints,
				Err:       err,
				Elapsed:   time.Since(start),
			}
		}(sec)
	}

	wg.Wait()
	close(resCh)

	for res := range resCh {
		if res.Err != nil {
			// Pre-call status is always pending: the scheduler releases
			// only pending sections. Feedback stays attached.
			if rerr := reg.RevertDraft(res.Name, registry.StatusPending); rerr != nil {
				p.logger.Error().Err(rerr).Str("section", res.Name).Msg("revert failed")
			}
			p.logger.Warn().Err(res.Err).Str("section", res.Name).Msg("draft failed")
			results[res.Name] = res
			continue
		}

		if cerr := reg.CompleteDraft(res.Name, res.Content, res.KeyPoints); cerr != nil {
			res.Err = cerr
			results[res.Name] = res
			continue
		}
		if sec, ok := reg.Get(res.Name); ok {
			res.Version = sec.Version
		}
		p.logger.Info().
			Str("section", res.Name).
			Int("version", res.Version).
			Dur("elapsed", res.Elapsed).
			Msg("section drafted")
		results[res.Name] = res
	}

	return results
}

// draftOne generates content for a single section. Malformed model output is
// retried with a corrective re-prompt; transport errors follow the standard
// retryable classification.
func (p *Processor) draftOne(ctx context.Context, sec registry.Section, snapshot []registry.Section) (string, []string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	prompt := buildPrompt(p.tmpl, sec, buildManifest(snapshot, sec.Name))

	var parsed sectionSchema
	corrective := false
	err := retry.Do(ctx, p.retryCfg, func(ctx context.Context) error {
		req := llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		}
		if corrective {
			req.Messages[0].Content = prompt + correctiveSuffix
		}

		resp, err := p.provider.Complete(ctx, req)
		if err != nil {
			return err
		}

		out, perr := parseSection(resp.Text)
		if perr != nil {
			corrective = true
			return fmt.Errorf("%w: section %s: %v", derrors.ErrMalformedOutput, sec.Name, perr)
		}
		parsed = out
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return parsed.Content, parsed.KeyPoints, nil
}
