package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateStash snapshots a set of observations into a preserved context
// thread. Snapshots are value copies (spec.md §3): they keep their own
// content and embedding so a stash stays resumable even if the source
// observation is later soft-deleted or edited.
func (s *Store) CreateStash(ctx context.Context, st *Stash) (*Stash, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = time.Now().UTC()
	st.Status = StashStatusStashed

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO stashes (id, project_hash, session_id, topic_label, summary, created_at, resumed_at, status)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?)
		`, st.ID, st.ProjectHash, st.SessionID, st.TopicLabel, st.Summary, st.CreatedAt, string(st.Status)); err != nil {
			return fmt.Errorf("insert stash: %w", err)
		}

		for i, snap := range st.ObservationSnapshots {
			var blob []byte
			if len(snap.Embedding) > 0 {
				blob = encodeEmbedding(snap.Embedding)
			}
			if _, err := tx.Exec(`
				INSERT INTO stash_observations (stash_id, seq, observation_id, content, kind, timestamp, embedding_blob)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, st.ID, i, snap.ID, snap.Content, string(snap.Kind), snap.Timestamp, blob); err != nil {
				return fmt.Errorf("insert stash observation %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// GetStash loads a stash and its snapshot observations.
func (s *Store) GetStash(ctx context.Context, id string) (*Stash, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	var st Stash
	var resumedAt sql.NullTime
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_hash, session_id, topic_label, summary, created_at, resumed_at, status
		FROM stashes WHERE id = ?
	`, id).Scan(&st.ID, &st.ProjectHash, &st.SessionID, &st.TopicLabel, &st.Summary, &st.CreatedAt, &resumedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stash: %w", err)
	}
	st.Status = StashStatus(status)
	if resumedAt.Valid {
		t := resumedAt.Time
		st.ResumedAt = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT observation_id, content, kind, timestamp, embedding_blob
		FROM stash_observations WHERE stash_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load stash observations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var snap ObservationSnapshot
		var kind string
		var blob []byte
		if err := rows.Scan(&snap.ID, &snap.Content, &kind, &snap.Timestamp, &blob); err != nil {
			return nil, fmt.Errorf("scan stash observation: %w", err)
		}
		snap.Kind = ObservationKind(kind)
		if len(blob) > 0 {
			snap.Embedding = decodeEmbedding(blob)
		}
		st.ObservationSnapshots = append(st.ObservationSnapshots, snap)
	}
	return &st, rows.Err()
}

// ListStashes returns a project's stashes, newest first.
func (s *Store) ListStashes(ctx context.Context, projectHash string, includeResumed bool) ([]*Stash, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	query := `SELECT id FROM stashes WHERE project_hash = ?`
	args := []any{projectHash}
	if !includeResumed {
		query += ` AND status = ?`
		args = append(args, string(StashStatusStashed))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stashes: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stash id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Stash, 0, len(ids))
	for _, id := range ids {
		st, err := s.GetStash(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// ResumeStash marks a stash resumed and records the timestamp.
func (s *Store) ResumeStash(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE stashes SET status = ?, resumed_at = ? WHERE id = ?`, string(StashStatusResumed), now, id)
		if err != nil {
			return fmt.Errorf("resume stash: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
