package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftworks/docforge/internal/template"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	tmpl, err := template.LoadBytes([]byte(`
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: intro
  - name: body
    depends_on: ["intro"]
  - name: outro
    depends_on: ["body"]
`))
	require.NoError(t, err)
	return FromTemplate(tmpl, zerolog.Nop())
}

func TestFromTemplate_InitialState(t *testing.T) {
	reg := testRegistry(t)

	snap := reg.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"intro", "body", "outro"}, reg.Names())
	for _, s := range snap {
		assert.Equal(t, StatusPending, s.Status)
		assert.Equal(t, ReviewUnreviewed, s.ReviewStatus)
		assert.Equal(t, 0, s.Version)
	}
}

func TestBeginDraft_RequiresDepsCompleted(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("body")
	require.Error(t, err)

	_, err = reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "intro text", []string{"kp"}))

	sec, err := reg.BeginDraft("body")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, sec.Status)
}

func TestBeginDraft_RejectsNonPending(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)

	_, err = reg.BeginDraft("intro")
	assert.Error(t, err) // already in_progress
}

func TestCompleteDraft_IncrementsVersionAndClearsFeedback(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "v1", nil))

	sec, ok := reg.Get("intro")
	require.True(t, ok)
	assert.Equal(t, 1, sec.Version)
	assert.Equal(t, StatusCompleted, sec.Status)

	// revise it
	require.NoError(t, reg.AddFeedback("intro", Feedback{ToChange: []string{"tighten wording"}}))
	sec, _ = reg.Get("intro")
	assert.Equal(t, StatusNeedsRevision, sec.Status)
	assert.Equal(t, 1, sec.Feedback.Count())

	assert.Equal(t, 1, reg.ResetForRevision())
	sec, _ = reg.Get("intro")
	assert.Equal(t, StatusPending, sec.Status)
	assert.Equal(t, 1, sec.Feedback.Count(), "feedback survives the reset for the revision prompt")

	_, err = reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "v2", nil))

	sec, _ = reg.Get("intro")
	assert.Equal(t, 2, sec.Version)
	assert.True(t, sec.Feedback.Empty(), "successful revision consumes the ledger")
}

func TestRevertDraft_CountsConsecutiveFailures(t *testing.T) {
	reg := testRegistry(t)

	for i := 1; i <= 2; i++ {
		_, err := reg.BeginDraft("intro")
		require.NoError(t, err)
		require.NoError(t, reg.RevertDraft("intro", StatusPending))
		sec, _ := reg.Get("intro")
		assert.Equal(t, i, sec.ConsecutiveFailures)
		assert.Equal(t, StatusPending, sec.Status)
	}

	// a success resets the counter
	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "ok", nil))
	sec, _ := reg.Get("intro")
	assert.Equal(t, 0, sec.ConsecutiveFailures)
}

func TestNoteDraftFailure_KeepsStatus(t *testing.T) {
	reg := testRegistry(t)

	require.NoError(t, reg.NoteDraftFailure("intro", "previous attempt failed"))
	sec, _ := reg.Get("intro")
	assert.Equal(t, StatusPending, sec.Status)
	assert.Equal(t, []string{"previous attempt failed"}, sec.Feedback.ToChange)
}

func TestAddFeedback_EmptyDeltaIsNoop(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "x", nil))

	require.NoError(t, reg.AddFeedback("intro", Feedback{}))
	sec, _ := reg.Get("intro")
	assert.Equal(t, StatusCompleted, sec.Status)
}

func TestAddFeedback_UnknownSection(t *testing.T) {
	reg := testRegistry(t)
	err := reg.AddFeedback("ghost", Feedback{ToAdd: []string{"x"}})
	assert.Error(t, err)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	reg := testRegistry(t)

	snap := reg.Snapshot()
	snap[0].Status = StatusCompleted
	snap[0].Feedback.ToAdd = append(snap[0].Feedback.ToAdd, "mutated")

	sec, _ := reg.Get("intro")
	assert.Equal(t, StatusPending, sec.Status)
	assert.True(t, sec.Feedback.Empty())
}

func TestRestore_RoundTrip(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "intro text", []string{"a", "b"}))
	require.NoError(t, reg.SetReview("intro", 8.5))

	snap := reg.Snapshot()

	other := testRegistry(t)
	other.Restore(snap)

	sec, ok := other.Get("intro")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, sec.Status)
	assert.Equal(t, "intro text", sec.Content)
	assert.Equal(t, []string{"a", "b"}, sec.KeyPoints)
	assert.Equal(t, 8.5, sec.QualityScore)
	assert.Equal(t, 1, sec.Version)
}

func TestSetReview_RejectsOutOfScaleScores(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.BeginDraft("intro")
	require.NoError(t, err)
	require.NoError(t, reg.CompleteDraft("intro", "intro text", nil))

	err = reg.SetReview("intro", 85.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0-10 scale")

	require.Error(t, reg.SetReview("intro", -1))

	sec, _ := reg.Get("intro")
	assert.Equal(t, ReviewUnreviewed, sec.ReviewStatus)
	assert.Equal(t, 0.0, sec.QualityScore)

	require.NoError(t, reg.SetReview("intro", 10))
	sec, _ = reg.Get("intro")
	assert.Equal(t, ReviewReviewed, sec.ReviewStatus)
	assert.Equal(t, 10.0, sec.QualityScore)
}

func TestCountByStatusAndAllCompleted(t *testing.T) {
	reg := testRegistry(t)

	counts := reg.CountByStatus()
	assert.Equal(t, 3, counts[StatusPending])
	assert.False(t, reg.AllCompleted())

	for _, name := range []string{"intro", "body", "outro"} {
		_, err := reg.BeginDraft(name)
		require.NoError(t, err)
		require.NoError(t, reg.CompleteDraft(name, "x", nil))
	}
	assert.True(t, reg.AllCompleted())
}

func TestFeedback_Render(t *testing.T) {
	f := Feedback{
		ToRemove: []string{"drop the vendor pitch"},
		ToAdd:    []string{"add failover guidance"},
		ToChange: []string{"simplify the intro paragraph"},
	}
	out := f.Render()
	assert.Contains(t, out, "Remove:\n- drop the vendor pitch\n")
	assert.Contains(t, out, "Add:\n- add failover guidance\n")
	assert.Contains(t, out, "Change:\n- simplify the intro paragraph\n")
}
