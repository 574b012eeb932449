package draft

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/llm"
	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/retry"
	"github.com/draftworks/docforge/internal/template"
)

func testTemplate(t *testing.T, sections string) *template.Template {
	t.Helper()
	tmpl, err := template.LoadBytes([]byte(`
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
` + sections))
	require.NoError(t, err)
	return tmpl
}

func draftJSON(content string, points ...string) string {
	out, _ := json.Marshal(sectionSchema{Content: content, KeyPoints: points})
	return string(out)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

// scriptProvider answers per-section so concurrent rounds stay
// deterministic regardless of goroutine scheduling.
type scriptProvider struct {
	mu      sync.Mutex
	answers func(prompt string) (string, error)
}

func (p *scriptProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, err := p.answers(req.Messages[len(req.Messages)-1].Content)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: text, StopReason: llm.StopReasonEndTurn}, nil
}

func (p *scriptProvider) ModelID() string { return "script" }
func (p *scriptProvider) MaxTokens() int  { return 4096 }

func TestProcess_DraftsReadySections(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: intro
  - name: body
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())
	provider := llm.NewMockProvider(draftJSON("some content", "kp1"))
	p := NewProcessor(provider, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"intro", "body"}, 3)
	require.Len(t, results, 2)
	for _, name := range []string{"intro", "body"} {
		res := results[name]
		require.NoError(t, res.Err)
		assert.Equal(t, "some content", res.Content)
		assert.Equal(t, 1, res.Version)

		sec, _ := reg.Get(name)
		assert.Equal(t, registry.StatusCompleted, sec.Status)
		assert.Equal(t, []string{"kp1"}, sec.KeyPoints)
	}
}

func TestProcess_CapsRoundAtMaxParallel(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: a
  - name: b
  - name: c
  - name: d
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())
	provider := llm.NewMockProvider(draftJSON("x"))
	p := NewProcessor(provider, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"a", "b", "c", "d"}, 3)
	assert.Len(t, results, 3)

	sec, _ := reg.Get("d")
	assert.Equal(t, registry.StatusPending, sec.Status, "excess section waits for the next round")
}

func TestProcess_OneFailureDoesNotCancelSiblings(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: good
  - name: bad
  - name: fine
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())
	provider := &scriptProvider{answers: func(prompt string) (string, error) {
		if strings.Contains(prompt, `"bad"`) {
			return "", derrors.NewAPIError("anthropic", 401, "bad key")
		}
		return draftJSON("ok"), nil
	}}
	p := NewProcessor(provider, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"good", "bad", "fine"}, 3)
	require.Len(t, results, 3)

	assert.NoError(t, results["good"].Err)
	assert.NoError(t, results["fine"].Err)
	assert.Error(t, results["bad"].Err)

	sec, _ := reg.Get("bad")
	assert.Equal(t, registry.StatusPending, sec.Status, "failed section reverts to pending")
	assert.Equal(t, 1, sec.ConsecutiveFailures)
	for _, name := range []string{"good", "fine"} {
		sec, _ := reg.Get(name)
		assert.Equal(t, registry.StatusCompleted, sec.Status)
	}
}

func TestProcess_CorrectiveRetryOnMalformedOutput(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: intro
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())

	var sawCorrective atomic.Bool
	var first atomic.Bool
	provider := &scriptProvider{answers: func(prompt string) (string, error) {
		if first.CompareAndSwap(false, true) {
			return "sorry, here is prose instead of JSON", nil
		}
		if strings.Contains(prompt, "was not valid JSON") {
			sawCorrective.Store(true)
		}
		return draftJSON("recovered"), nil
	}}
	p := NewProcessor(provider, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"intro"}, 1)
	require.NoError(t, results["intro"].Err)
	assert.Equal(t, "recovered", results["intro"].Content)
	assert.True(t, sawCorrective.Load(), "second attempt carries the corrective suffix")
}

func TestProcess_RevisionPromptCarriesFeedbackVerbatim(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: intro
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "old draft", nil))
	require.NoError(t, reg.AddFeedback("intro", registry.Feedback{
		ToRemove: []string{"the vendor comparison table"},
		ToAdd:    []string{"a paragraph on backup retention"},
	}))
	reg.ResetForRevision()

	mock := llm.NewMockProvider(draftJSON("new draft"))
	p := NewProcessor(mock, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"intro"}, 1)
	require.NoError(t, results["intro"].Err)

	require.Len(t, mock.Requests, 1)
	prompt := mock.Requests[0].Messages[0].Content
	assert.Contains(t, prompt, "This is a REVISION")
	assert.Contains(t, prompt, "- the vendor comparison table")
	assert.Contains(t, prompt, "- a paragraph on backup retention")
	assert.Contains(t, prompt, "Previous draft:\nold draft")
}

func TestProcess_ManifestListsCompletedSiblings(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: intro
  - name: body
    depends_on: ["intro"]
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "intro text", []string{"scope", "audience", "goals", "extra"}))

	mock := llm.NewMockProvider(draftJSON("body text"))
	p := NewProcessor(mock, tmpl, fastRetry(), 0, zerolog.Nop())

	results := p.Process(context.Background(), reg, []string{"body"}, 1)
	require.NoError(t, results["body"].Err)

	prompt := mock.Requests[0].Messages[0].Content
	assert.Contains(t, prompt, "intro: scope, audience, goals")
	assert.NotContains(t, prompt, "extra", "manifest caps at three key points")
}

func TestParseSection_ToleratesFences(t *testing.T) {
	out, err := parseSection("```json\n" + draftJSON("fenced") + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "fenced", out.Content)
}

func TestParseSection_RejectsEmptyContent(t *testing.T) {
	_, err := parseSection(`{"content": "", "key_points": []}`)
	assert.Error(t, err)
}

func TestProcess_BeginDraftErrorSurfaces(t *testing.T) {
	tmpl := testTemplate(t, `
  - name: intro
  - name: body
    depends_on: ["intro"]
`)
	reg := registry.FromTemplate(tmpl, zerolog.Nop())
	p := NewProcessor(llm.NewMockProvider(draftJSON("x")), tmpl, fastRetry(), 0, zerolog.Nop())

	// body's dependency is not completed; the scheduler would never
	// release it, but a bogus ready set must not wedge the registry.
	results := p.Process(context.Background(), reg, []string{"body"}, 1)
	require.Error(t, results["body"].Err)

	sec, _ := reg.Get("body")
	assert.Equal(t, registry.StatusPending, sec.Status)
}
