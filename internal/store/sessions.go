package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession opens a new activity window under the host-supplied session
// id, so later observations, topic-shift state, and EndSession all key off
// the same id the host uses throughout the session's lifetime. If the host
// didn't supply one, a fresh id is minted.
func (s *Store) CreateSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	sess := &Session{ID: id, StartedAt: time.Now().UTC()}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO sessions (id, started_at, ended_at, summary) VALUES (?, ?, NULL, '')`,
			sess.ID, sess.StartedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT id, started_at, ended_at, summary FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

// EndSession closes a session and records its final summary. Called on
// SessionEnd, after the orchestrator's summarization pass has produced the
// text to store.
func (s *Store) EndSession(ctx context.Context, id, summary string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE sessions SET ended_at = ?, summary = ? WHERE id = ?`, now, summary, id)
		if err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
