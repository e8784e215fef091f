package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// encodeEmbedding packs a float32 vector as a little-endian BLOB. Grounded
// on the reference vector store's column layout: one BLOB per row rather
// than a native vector type, since modernc.org/sqlite carries no vector
// extension.
func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors in [-1, 1]. Zero-length or mismatched vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func upsertVector(tx *sql.Tx, observationID, projectHash, model string, vec []float32) error {
	_, err := tx.Exec(`
		INSERT INTO observation_vectors (observation_id, project_hash, dims, model, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(observation_id) DO UPDATE SET
			project_hash = excluded.project_hash,
			dims = excluded.dims,
			model = excluded.model,
			embedding = excluded.embedding
	`, observationID, projectHash, len(vec), model, encodeEmbedding(vec))
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

func loadVector(db *sql.DB, observationID string) ([]float32, string, error) {
	var blob []byte
	var model string
	err := db.QueryRow(`SELECT embedding, model FROM observation_vectors WHERE observation_id = ?`, observationID).Scan(&blob, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("load vector: %w", err)
	}
	return decodeEmbedding(blob), model, nil
}

// SetEmbedding writes an observation's vector row without touching its
// title/content/FTS row, for the embedding sweep's write-back path (which
// never has reason to rewrite the text it just read).
func (s *Store) SetEmbedding(ctx context.Context, observationID, projectHash, model string, vec []float32) error {
	if s.unavailable {
		return ErrStoreUnavailable
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set embedding: begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := upsertVector(tx, observationID, projectHash, model, vec); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE observations SET embedding_model = ? WHERE id = ?`, model, observationID); err != nil {
		return fmt.Errorf("set embedding: update model: %w", err)
	}
	return tx.Commit()
}

// PendingEmbeddings returns up to limit visible observations across all
// projects that have no vector row yet, oldest first, for the embedding
// sweep loop.
func (s *Store) PendingEmbeddings(ctx context.Context, limit int) ([]*Observation, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.project_hash, o.title, o.content, o.content_hash, o.source, o.session_id,
		       o.embedding_model, o.classification, o.kind, o.created_at, o.updated_at, o.deleted_at
		FROM observations o
		LEFT JOIN observation_vectors v ON v.observation_id = o.id
		WHERE v.observation_id IS NULL AND o.deleted_at IS NULL
		ORDER BY o.created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending embeddings: %w", err)
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

// VectorMatch is a single KNN search hit.
type VectorMatch struct {
	ObservationID string
	Score         float64
}

// KNN loads every vector in the project into memory and ranks them by
// cosine similarity to query. This is the in-Go equivalent of a vector
// index: acceptable at the single-project, single-user scale this store
// targets (spec.md §4.1's degradation note), and it keeps the dependency
// surface free of a native vector extension the driver does not provide.
func (s *Store) KNN(ctx context.Context, projectHash string, query []float32, limit int) ([]VectorMatch, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.observation_id, v.embedding
		FROM observation_vectors v
		JOIN observations o ON o.id = v.observation_id
		WHERE v.project_hash = ? AND o.deleted_at IS NULL
	`, projectHash)
	if err != nil {
		return nil, fmt.Errorf("knn scan: %w", err)
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan knn row: %w", err)
		}
		sim := CosineSimilarity(query, decodeEmbedding(blob))
		matches = append(matches, VectorMatch{ObservationID: id, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortMatchesDesc(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortMatchesDesc(m []VectorMatch) {
	// insertion sort: result sets are small (single-project vector counts),
	// and it keeps this file free of a sort.Slice import for one call site.
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].Score > m[j-1].Score; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}
