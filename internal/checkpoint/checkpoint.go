package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/committee"
	derrors "github.com/draftworks/docforge/internal/errors"
	"github.com/draftworks/docforge/internal/registry"
)

// Session lifecycle status values.
const (
	SessionInProgress = "in_progress"
	SessionPublished  = "published"
	SessionAbandoned  = "abandoned"
)

// Boundaries at which the engine saves a checkpoint.
const (
	BoundaryGate = "gate"
	BoundaryVote = "vote"
)

// VersionRecord captures one completed attempt of the revision loop.
type VersionRecord struct {
	Attempt   int       `json:"attempt"`
	Score     float64   `json:"score"`
	Ref       string    `json:"ref"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEvent is one entry of the append-only session audit trail.
type AuditEvent struct {
	Time   time.Time `json:"time"`
	State  string    `json:"state"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// Snapshot is the full serializable state of a session at a save
// boundary. Restoring a snapshot reproduces the section registry and
// the attempt counters exactly as they were when it was taken.
type Snapshot struct {
	SessionID   string                         `json:"session_id"`
	Title       string                         `json:"title"`
	Status      string                         `json:"status"`
	Attempt     int                            `json:"attempt"`
	MaxAttempts int                            `json:"max_attempts"`
	Boundary    string                         `json:"boundary"`
	NextState   string                         `json:"next_state,omitempty"`
	Sections    []registry.Section             `json:"sections"`
	Analysis    *analysis.CompletenessAnalysis `json:"analysis,omitempty"`
	Tally       *committee.Tally               `json:"tally,omitempty"`
	Versions    []VersionRecord                `json:"versions,omitempty"`
	Audit       []AuditEvent                   `json:"audit,omitempty"`
	SavedAt     time.Time                      `json:"saved_at"`
}

// Ref returns the address of the snapshot within the store.
func (s *Snapshot) Ref() string {
	return fmt.Sprintf("%s/%d", s.SessionID, s.Attempt)
}

// Score reports the most recent gate score carried by the snapshot.
func (s *Snapshot) Score() float64 {
	if s.Analysis == nil {
		return 0
	}
	return s.Analysis.OverallScore
}

// Save persists a snapshot and upserts the owning session row. It
// returns the checkpoint ref (sessionID/attempt).
func (st *Store) Save(snap *Snapshot) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap.SavedAt = time.Now().UTC()
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	now := snap.SavedAt.UnixMilli()
	tx, err := st.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (session_id, title, status, attempt, max_attempts, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			attempt = excluded.attempt,
			score = excluded.score,
			updated_at = excluded.updated_at
	`, snap.SessionID, snap.Title, snap.Status, snap.Attempt, snap.MaxAttempts, snap.Score(), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert session: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO checkpoints (session_id, attempt, boundary, score, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.SessionID, snap.Attempt, snap.Boundary, snap.Score(), string(payload), now)
	if err != nil {
		return "", fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	ref := snap.Ref()
	st.logger.Debug().
		Str("ref", ref).
		Str("boundary", snap.Boundary).
		Float64("score", snap.Score()).
		Msg("checkpoint saved")
	return ref, nil
}

// Load resolves a ref to its most recent snapshot. A ref is either
// "sessionID/attempt" for an exact boundary or a bare sessionID for
// the latest checkpoint of that session.
func (st *Store) Load(ref string) (*Snapshot, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	query := `
		SELECT snapshot FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`
	args := []any{ref}

	if idx := strings.LastIndex(ref, "/"); idx > 0 {
		attempt, err := strconv.Atoi(ref[idx+1:])
		if err != nil {
			return nil, derrors.ConfigError("invalid checkpoint ref %q", ref)
		}
		query = `
			SELECT snapshot FROM checkpoints
			WHERE session_id = ? AND attempt = ?
			ORDER BY created_at DESC, id DESC LIMIT 1
		`
		args = []any{ref[:idx], attempt}
	}

	var payload string
	err := st.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint %q: %w", ref, derrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Candidate summarizes a session eligible for resume.
type Candidate struct {
	SessionID string
	Title     string
	Status    string
	Attempt   int
	Score     float64
	UpdatedAt time.Time
}

// Ref returns the checkpoint address of the candidate's latest attempt.
func (c Candidate) Ref() string {
	return fmt.Sprintf("%s/%d", c.SessionID, c.Attempt)
}

// ListCandidates returns all resumable sessions, most recent first.
func (st *Store) ListCandidates() ([]Candidate, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	rows, err := st.db.Query(`
		SELECT session_id, title, status, attempt, score, updated_at
		FROM sessions
		WHERE status IN (?, ?)
		ORDER BY updated_at DESC
	`, SessionPublished, SessionInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var updated int64
		if err := rows.Scan(&c.SessionID, &c.Title, &c.Status, &c.Attempt, &c.Score, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		c.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// SelectResume applies the resume policy to a candidate list: the most
// recently updated published session wins; failing that, the most
// recently updated in-progress session. Returns nil when nothing is
// resumable.
func SelectResume(candidates []Candidate) *Candidate {
	for i := range candidates {
		if candidates[i].Status == SessionPublished {
			return &candidates[i]
		}
	}
	for i := range candidates {
		if candidates[i].Status == SessionInProgress {
			return &candidates[i]
		}
	}
	return nil
}

// SetStatus records a terminal (or restored) lifecycle status for a
// session without writing a new checkpoint.
func (st *Store) SetStatus(sessionID, status string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	res, err := st.db.Exec(`
		UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?
	`, status, time.Now().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %q: %w", sessionID, derrors.ErrNotFound)
	}
	return nil
}
