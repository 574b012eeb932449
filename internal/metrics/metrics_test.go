package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAndServes(t *testing.T) {
	m := New()

	m.RecordDraft("intro", "ok", 1.2)
	m.RecordGate("generate_report", 85)
	m.RecordVote("approved")
	m.RecordFinish(2)
	m.RecordFeedback("gate", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "docforge_drafts_total")
	assert.Contains(t, body, "docforge_gate_decisions_total")
	assert.Contains(t, body, "docforge_vote_outcomes_total")
	assert.Contains(t, body, "docforge_feedback_routed_total")
}

func TestNew_PrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.RecordVote("approved")
	b.RecordVote("rejected")
}
