package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddNotification enqueues a consume-once message addressed to the next
// tool call for a project (spec.md §3's Notification definition).
func (s *Store) AddNotification(ctx context.Context, projectHash, text string) error {
	n := &Notification{ID: uuid.NewString(), ProjectHash: projectHash, Text: text, CreatedAt: time.Now().UTC()}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO notifications (id, project_hash, text, created_at) VALUES (?, ?, ?, ?)`,
			n.ID, n.ProjectHash, n.Text, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
}

// ConsumePendingNotifications returns and deletes all pending notifications
// for a project, oldest first. Each notification is delivered exactly once:
// a crash between the SELECT and DELETE would re-deliver, so both run in
// the same transaction.
func (s *Store) ConsumePendingNotifications(ctx context.Context, projectHash string) ([]*Notification, error) {
	var out []*Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, project_hash, text, created_at FROM notifications
			WHERE project_hash = ? ORDER BY created_at ASC
		`, projectHash)
		if err != nil {
			return fmt.Errorf("query notifications: %w", err)
		}
		var ids []string
		for rows.Next() {
			var n Notification
			if err := rows.Scan(&n.ID, &n.ProjectHash, &n.Text, &n.CreatedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan notification: %w", err)
			}
			out = append(out, &n)
			ids = append(ids, n.ID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM notifications WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete notification %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
