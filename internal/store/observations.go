package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentHash returns the dedup key for a title+content pair. Two
// observations with the same hash in the same project, within
// contentHashDedupWindow of each other, are considered duplicates by
// CreateObservation.
func ContentHash(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// contentHashDedupWindow bounds content-hash dedup to recent repeats
// (spec.md §4.8): identical content re-observed a long time later is a
// legitimate re-occurrence, not a duplicate admission.
const contentHashDedupWindow = 24 * time.Hour

// CreateObservation inserts a new observation, its FTS row, and (if an
// embedding is present) its vector row, all in one transaction. If an
// existing, visible observation in the same project already has the same
// content hash, CreateObservation returns that observation instead of
// inserting a duplicate (spec.md §4.1 dedup note).
func (s *Store) CreateObservation(ctx context.Context, o *Observation) (*Observation, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ContentHash == "" {
		o.ContentHash = ContentHash(o.Title, o.Content)
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.Classification == "" {
		o.Classification = ClassificationUnclassified
	}
	if o.Kind == "" {
		o.Kind = ObservationKindEvent
	}

	var result *Observation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findByContentHash(tx, o.ProjectHash, o.ContentHash, now.Add(-contentHashDedupWindow))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err == nil {
			result = existing
			return nil
		}

		if _, err := tx.Exec(`
			INSERT INTO observations (
				id, project_hash, title, content, content_hash, source, session_id,
				embedding_model, classification, kind, created_at, updated_at, deleted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		`, o.ID, o.ProjectHash, o.Title, o.Content, o.ContentHash, o.Source, nullableString(o.SessionID),
			o.EmbeddingModel, string(o.Classification), string(o.Kind), o.CreatedAt, o.UpdatedAt); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO observations_fts (id, title, content) VALUES (?, ?, ?)
		`, o.ID, o.Title, o.Content); err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}

		if len(o.Embedding) > 0 {
			if err := upsertVector(tx, o.ID, o.ProjectHash, o.EmbeddingModel, o.Embedding); err != nil {
				return err
			}
		}

		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func findByContentHash(tx *sql.Tx, projectHash, contentHash string, since time.Time) (*Observation, error) {
	row := tx.QueryRow(`
		SELECT id, project_hash, title, content, content_hash, source, session_id,
		       embedding_model, classification, kind, created_at, updated_at, deleted_at
		FROM observations
		WHERE project_hash = ? AND content_hash = ? AND deleted_at IS NULL AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1
	`, projectHash, contentHash, since)
	return scanObservation(row)
}

// GetObservation returns a visible (non-deleted) observation by ID.
func (s *Store) GetObservation(ctx context.Context, id string) (*Observation, error) {
	return s.getObservation(ctx, id, false)
}

// GetObservationIncludingDeleted returns an observation regardless of its
// deletion state, for admin/diagnostic use.
func (s *Store) GetObservationIncludingDeleted(ctx context.Context, id string) (*Observation, error) {
	return s.getObservation(ctx, id, true)
}

func (s *Store) getObservation(ctx context.Context, id string, includeDeleted bool) (*Observation, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	query := `
		SELECT id, project_hash, title, content, content_hash, source, session_id,
		       embedding_model, classification, kind, created_at, updated_at, deleted_at
		FROM observations WHERE id = ?
	`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	row := s.db.QueryRowContext(ctx, query, id)
	obs, err := scanObservation(row)
	if err != nil {
		return nil, err
	}

	embedding, model, err := loadVector(s.db, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err == nil {
		obs.Embedding = embedding
		if obs.EmbeddingModel == "" {
			obs.EmbeddingModel = model
		}
	}
	return obs, nil
}

// UpdateObservation updates title/content/classification and keeps the FTS
// index and vector row in sync within the same transaction.
func (s *Store) UpdateObservation(ctx context.Context, o *Observation) error {
	o.UpdatedAt = time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE observations
			SET title = ?, content = ?, content_hash = ?, classification = ?, updated_at = ?
			WHERE id = ? AND deleted_at IS NULL
		`, o.Title, o.Content, ContentHash(o.Title, o.Content), string(o.Classification), o.UpdatedAt, o.ID)
		if err != nil {
			return fmt.Errorf("update observation: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(`DELETE FROM observations_fts WHERE id = ?`, o.ID); err != nil {
			return fmt.Errorf("clear stale fts row: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO observations_fts (id, title, content) VALUES (?, ?, ?)`, o.ID, o.Title, o.Content); err != nil {
			return fmt.Errorf("reinsert fts row: %w", err)
		}

		if len(o.Embedding) > 0 {
			if err := upsertVector(tx, o.ID, o.ProjectHash, o.EmbeddingModel, o.Embedding); err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDelete marks an observation deleted without removing it, so graph
// edges and stash snapshots referencing it remain valid.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE observations SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
		if err != nil {
			return fmt.Errorf("soft delete observation: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Restore clears an observation's deletion marker.
func (s *Store) Restore(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE observations SET deleted_at = NULL, updated_at = ? WHERE id = ?`, now, id)
		if err != nil {
			return fmt.Errorf("restore observation: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListObservations returns observations matching filter, newest first.
func (s *Store) ListObservations(ctx context.Context, filter ObservationFilter) ([]*Observation, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	query := `
		SELECT id, project_hash, title, content, content_hash, source, session_id,
		       embedding_model, classification, kind, created_at, updated_at, deleted_at
		FROM observations WHERE project_hash = ?
	`
	args := []any{filter.ProjectHash}
	if !filter.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		obs, err := scanObservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// DistinctProjectHashes returns every project hash with at least one
// observation, for background loops that must sweep all known projects
// without a standalone project registry to enumerate.
func (s *Store) DistinctProjectHashes(ctx context.Context) ([]string, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT project_hash FROM observations`)
	if err != nil {
		return nil, fmt.Errorf("distinct project hashes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ph string
		if err := rows.Scan(&ph); err != nil {
			return nil, fmt.Errorf("scan project hash: %w", err)
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

// FTSMatch is a single keyword-search hit with its BM25 score.
type FTSMatch struct {
	Observation *Observation
	Score       float64
}

// SearchFTS runs a BM25-ranked full-text query over title and content,
// weighting title matches twice as heavily as content matches
// (spec.md §4.3).
func (s *Store) SearchFTS(ctx context.Context, projectHash, query string, limit int) ([]FTSMatch, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.project_hash, o.title, o.content, o.content_hash, o.source, o.session_id,
		       o.embedding_model, o.classification, o.kind, o.created_at, o.updated_at, o.deleted_at,
		       bm25(observations_fts, 2.0, 1.0) AS rank
		FROM observations_fts
		JOIN observations o ON o.id = observations_fts.id
		WHERE observations_fts MATCH ? AND o.deleted_at IS NULL AND o.project_hash = ?
		ORDER BY rank
		LIMIT ?
	`, query, projectHash, limit)
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}
	defer rows.Close()

	var out []FTSMatch
	for rows.Next() {
		var (
			obs       Observation
			sessionID sql.NullString
			deletedAt sql.NullTime
			rank      float64
			cls, kind string
		)
		if err := rows.Scan(&obs.ID, &obs.ProjectHash, &obs.Title, &obs.Content, &obs.ContentHash,
			&obs.Source, &sessionID, &obs.EmbeddingModel, &cls, &kind, &obs.CreatedAt, &obs.UpdatedAt,
			&deletedAt, &rank); err != nil {
			return nil, fmt.Errorf("scan fts match: %w", err)
		}
		obs.SessionID = sessionID.String
		obs.Classification = Classification(cls)
		obs.Kind = ObservationKind(kind)
		if deletedAt.Valid {
			t := deletedAt.Time
			obs.DeletedAt = &t
		}
		// bm25() returns lower-is-better; callers (RRF fusion) want
		// higher-is-better, so invert here at the source.
		out = append(out, FTSMatch{Observation: &obs, Score: -rank})
	}
	return out, rows.Err()
}

func scanObservation(row *sql.Row) (*Observation, error) {
	var (
		obs       Observation
		sessionID sql.NullString
		deletedAt sql.NullTime
		cls, kind string
	)
	err := row.Scan(&obs.ID, &obs.ProjectHash, &obs.Title, &obs.Content, &obs.ContentHash, &obs.Source,
		&sessionID, &obs.EmbeddingModel, &cls, &kind, &obs.CreatedAt, &obs.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}
	obs.SessionID = sessionID.String
	obs.Classification = Classification(cls)
	obs.Kind = ObservationKind(kind)
	if deletedAt.Valid {
		t := deletedAt.Time
		obs.DeletedAt = &t
	}
	return &obs, nil
}

func scanObservationRows(rows *sql.Rows) (*Observation, error) {
	var (
		obs       Observation
		sessionID sql.NullString
		deletedAt sql.NullTime
		cls, kind string
	)
	err := rows.Scan(&obs.ID, &obs.ProjectHash, &obs.Title, &obs.Content, &obs.ContentHash, &obs.Source,
		&sessionID, &obs.EmbeddingModel, &cls, &kind, &obs.CreatedAt, &obs.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("scan observation: %w", err)
	}
	obs.SessionID = sessionID.String
	obs.Classification = Classification(cls)
	obs.Kind = ObservationKind(kind)
	if deletedAt.Valid {
		t := deletedAt.Time
		obs.DeletedAt = &t
	}
	return &obs, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
