package committee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/draftworks/docforge/internal/analysis"
	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/retry"
	"github.com/draftworks/docforge/internal/template"
)

// Reviewer produces one vote on a document.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, documentText string, rules analysis.RuleContext) (Vote, error)
}

// Panel gathers votes from all reviewers concurrently, bounded by
// maxParallel, with explicit join-and-error-aggregation: one reviewer's
// failure never cancels the others, and a failed reviewer abstains.
type Panel struct {
	reviewers   []Reviewer
	maxParallel int
	logger      zerolog.Logger
}

// NewPanel creates a Panel.
func NewPanel(reviewers []Reviewer, maxParallel int, logger zerolog.Logger) *Panel {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Panel{
		reviewers:   reviewers,
		maxParallel: maxParallel,
		logger:      logger.With().Str("component", "committee").Logger(),
	}
}

// Collect runs every reviewer and returns one vote per reviewer, in reviewer
// order. Reviewer errors are aggregated into the returned error; the
// corresponding votes are abstentions carrying the failure as a concern.
func (p *Panel) Collect(ctx context.Context, documentText string, rules analysis.RuleContext) ([]Vote, error) {
	votes := make([]Vote, len(p.reviewers))
	errs := make([]error, len(p.reviewers))

	sem := make(chan struct{}, p.maxParallel)
	var wg sync.WaitGroup

	for i, r := range p.reviewers {
		wg.Add(1)
		go func(i int, r Reviewer) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			v, err := r.Review(ctx, documentText, rules)
			if err != nil {
				p.logger.Warn().Err(err).Str("reviewer", r.Name()).Msg("reviewer failed, abstaining")
				votes[i] = Vote{
					Reviewer:             r.Name(),
					Approval:             Abstain,
					CompletenessConcerns: []string{"review failed: " + err.Error()},
				}
				errs[i] = fmt.Errorf("reviewer %s: %w", r.Name(), err)
				return
			}
			v.Reviewer = r.Name()
			votes[i] = v
		}(i, r)
	}
	wg.Wait()

	var failed []string
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return votes, fmt.Errorf("committee: %s", strings.Join(failed, "; "))
	}
	return votes, nil
}

// LLMReviewer asks a generation backend to vote from a particular focus.
type LLMReviewer struct {
	spec     template.ReviewerSpec
	provider llm.Provider
	retryCfg retry.Config
}

// NewLLMReviewer creates a reviewer persona from its template spec.
func NewLLMReviewer(spec template.ReviewerSpec, provider llm.Provider, retryCfg retry.Config) *LLMReviewer {
	return &LLMReviewer{spec: spec, provider: provider, retryCfg: retryCfg}
}

func (r *LLMReviewer) Name() string { return r.spec.Name }

// Review implements Reviewer.
func (r *LLMReviewer) Review(ctx context.Context, documentText string, rules analysis.RuleContext) (Vote, error) {
	prompt := buildReviewPrompt(r.spec, documentText, rules)

	var vote Vote
	corrective := false
	err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
		content := prompt
		if corrective {
			content += "\n\nYour previous response was not valid JSON. " +
				"Respond again with ONLY the JSON object, nothing else."
		}
		resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: fmt.Sprintf("You are an expert document reviewer focused on %s.", r.spec.Focus),
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: content}},
		})
		if err != nil {
			return err
		}

		v, perr := parseVote(resp.Text)
		if perr != nil {
			corrective = true
			return fmt.Errorf("%w: vote: %v", derrors.ErrMalformedOutput, perr)
		}
		vote = v
		return nil
	})
	if err != nil {
		return Vote{}, err
	}
	return vote, nil
}

func buildReviewPrompt(spec template.ReviewerSpec, documentText string, rules analysis.RuleContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Review the following document as the %q committee member (focus: %s).\n\n",
		spec.Name, spec.Focus)
	fmt.Fprintf(&sb, "Topic: %s\nPurpose: %s\n", rules.Topic, rules.Purpose)
	fmt.Fprintf(&sb, "Declared sections: %s\n\n", strings.Join(rules.SectionNames, ", "))
	fmt.Fprintf(&sb, "Document:\n%s\n\n", documentText)

	sb.WriteString(`Cast your vote. "in_favor" means publishable as-is, "against" means it must
not be published, "abstain" means you cannot judge. Attach structured remarks
for anything that should change, naming the exact section when you can.

Respond ONLY with valid JSON:
{
  "approval": "in_favor" | "against" | "abstain",
  "remarks": [
    {"section": "<declared section name or omit>", "kind": "remove" | "add" | "change", "text": "..."}
  ],
  "completeness_concerns": ["..."]
}`)

	return sb.String()
}

func parseVote(text string) (Vote, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var v Vote
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return Vote{}, err
	}
	switch v.Approval {
	case InFavor, Against, Abstain:
	default:
		return Vote{}, fmt.Errorf("unknown approval %q", v.Approval)
	}
	return v, nil
}
