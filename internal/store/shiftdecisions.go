package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordShiftDecision appends an audit row for one topic-detector run. The
// log is append-only: decisions are never updated or deleted, so the
// detector's threshold-adaptation history can always be replayed
// (spec.md §4.5).
func (s *Store) RecordShiftDecision(ctx context.Context, d *ShiftDecision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO shift_decisions (id, session_id, distance, threshold, shifted, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.SessionID, d.Distance, d.Threshold, d.Shifted, d.Confidence, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert shift decision: %w", err)
		}
		return nil
	})
}

// ListShiftDecisions returns a session's shift decisions in chronological
// order, oldest first, for threshold-adaptation replay.
func (s *Store) ListShiftDecisions(ctx context.Context, sessionID string) ([]*ShiftDecision, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, distance, threshold, shifted, confidence, created_at
		FROM shift_decisions WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list shift decisions: %w", err)
	}
	defer rows.Close()

	var out []*ShiftDecision
	for rows.Next() {
		var d ShiftDecision
		var confidence sql.NullFloat64
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Distance, &d.Threshold, &d.Shifted, &confidence, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shift decision: %w", err)
		}
		if confidence.Valid {
			v := confidence.Float64
			d.Confidence = &v
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
