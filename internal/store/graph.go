package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertNode creates or updates the node identified by (projectHash, name,
// type). On update, metadata is deep-merged (new keys win on conflict) and
// the observation's ID is appended to the node's provenance list
// (spec.md §4.6).
func (s *Store) UpsertNode(ctx context.Context, n *GraphNode, observationID string) (*GraphNode, error) {
	now := time.Now().UTC()
	var result *GraphNode
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID, metaJSON string
		err := tx.QueryRow(`SELECT id, metadata FROM graph_nodes WHERE project_hash = ? AND name = ? AND type = ?`,
			n.ProjectHash, n.Name, string(n.Type)).Scan(&existingID, &metaJSON)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if n.ID == "" {
				n.ID = uuid.NewString()
			}
			n.CreatedAt = now
			n.UpdatedAt = now
			metaBytes, merr := json.Marshal(n.Metadata)
			if merr != nil {
				return fmt.Errorf("marshal node metadata: %w", merr)
			}
			if _, err := tx.Exec(`
				INSERT INTO graph_nodes (id, project_hash, name, type, metadata, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, n.ID, n.ProjectHash, n.Name, string(n.Type), string(metaBytes), n.CreatedAt, n.UpdatedAt); err != nil {
				return fmt.Errorf("insert graph node: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup graph node: %w", err)
		default:
			n.ID = existingID
			n.UpdatedAt = now
			merged := map[string]any{}
			if metaJSON != "" {
				if err := json.Unmarshal([]byte(metaJSON), &merged); err != nil {
					return fmt.Errorf("unmarshal existing metadata: %w", err)
				}
			}
			for k, v := range n.Metadata {
				merged[k] = v
			}
			n.Metadata = merged
			metaBytes, merr := json.Marshal(merged)
			if merr != nil {
				return fmt.Errorf("marshal merged metadata: %w", merr)
			}
			if _, err := tx.Exec(`UPDATE graph_nodes SET metadata = ?, updated_at = ? WHERE id = ?`,
				string(metaBytes), n.UpdatedAt, n.ID); err != nil {
				return fmt.Errorf("update graph node: %w", err)
			}
		}

		if observationID != "" {
			if _, err := tx.Exec(`
				INSERT OR IGNORE INTO graph_node_observations (node_id, observation_id) VALUES (?, ?)
			`, n.ID, observationID); err != nil {
				return fmt.Errorf("link observation to node: %w", err)
			}
		}

		ids, err := observationIDsForNode(tx, n.ID)
		if err != nil {
			return err
		}
		n.ObservationIDs = ids
		result = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func observationIDsForNode(tx *sql.Tx, nodeID string) ([]string, error) {
	rows, err := tx.Query(`SELECT observation_id FROM graph_node_observations WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load node observations: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan node observation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NodeObservations returns up to limit observations linked to a node,
// newest first, for callers (like query_graph) that want excerpts
// grounding an entity rather than just its name.
func (s *Store) NodeObservations(ctx context.Context, nodeID string, limit int) ([]*Observation, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.project_hash, o.title, o.content, o.content_hash, o.source, o.session_id,
		       o.embedding_model, o.classification, o.kind, o.created_at, o.updated_at, o.deleted_at
		FROM graph_node_observations gno
		JOIN observations o ON o.id = gno.observation_id
		WHERE gno.node_id = ? AND o.deleted_at IS NULL
		ORDER BY o.created_at DESC
		LIMIT ?
	`, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("node observations: %w", err)
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

// CreateEdge inserts a directed, weighted edge between two nodes. If either
// the source node's out-degree or the target node's in-degree would exceed
// MaxDegree, the lowest-weight existing edge on that node is dropped first
// to make room, preventing any single node from accumulating unbounded
// fan-out or fan-in (spec.md §4.6).
func (s *Store) CreateEdge(ctx context.Context, e *GraphEdge, maxDegree int) (*GraphEdge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	metaBytes, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal edge metadata: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if maxDegree > 0 {
			if err := enforceDegreeCap(tx, "source_id", e.SourceID, maxDegree); err != nil {
				return err
			}
			if err := enforceDegreeCap(tx, "target_id", e.TargetID, maxDegree); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`
			INSERT INTO graph_edges (id, project_hash, source_id, target_id, type, weight, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.ProjectHash, e.SourceID, e.TargetID, string(e.Type), e.Weight, string(metaBytes), e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert graph edge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// enforceDegreeCap deletes the lowest-weight edge incident to nodeID via the
// given column (source_id for out-degree, target_id for in-degree) until
// its degree on that side is below maxDegree, making room for one more insert.
func enforceDegreeCap(tx *sql.Tx, column, nodeID string, maxDegree int) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM graph_edges WHERE `+column+` = ?`, nodeID).Scan(&count); err != nil {
		return fmt.Errorf("count node degree: %w", err)
	}
	if count < maxDegree {
		return nil
	}
	var weakestID string
	err := tx.QueryRow(`
		SELECT id FROM graph_edges WHERE `+column+` = ? ORDER BY weight ASC, created_at ASC LIMIT 1
	`, nodeID).Scan(&weakestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find weakest edge: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM graph_edges WHERE id = ?`, weakestID); err != nil {
		return fmt.Errorf("drop weakest edge: %w", err)
	}
	return nil
}

// ListNodes returns graph nodes matching filter.
func (s *Store) ListNodes(ctx context.Context, filter NodeFilter) ([]*GraphNode, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	query := `SELECT id, project_hash, name, type, metadata, created_at, updated_at FROM graph_nodes WHERE project_hash = ?`
	args := []any{filter.ProjectHash}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.NamePrefix != "" {
		query += " AND name LIKE ?"
		args = append(args, filter.NamePrefix+"%")
	}
	query += " ORDER BY updated_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list graph nodes: %w", err)
	}
	defer rows.Close()

	var out []*GraphNode
	for rows.Next() {
		var n GraphNode
		var typ, metaJSON string
		if err := rows.Scan(&n.ID, &n.ProjectHash, &n.Name, &typ, &metaJSON, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan graph node: %w", err)
		}
		n.Type = NodeType(typ)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal node metadata: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// ListEdges returns a node's outgoing edges, highest weight first.
func (s *Store) ListEdges(ctx context.Context, sourceID string) ([]*GraphEdge, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_hash, source_id, target_id, type, weight, metadata, created_at
		FROM graph_edges WHERE source_id = ? ORDER BY weight DESC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list graph edges: %w", err)
	}
	defer rows.Close()

	var out []*GraphEdge
	for rows.Next() {
		var e GraphEdge
		var typ, metaJSON string
		if err := rows.Scan(&e.ID, &e.ProjectHash, &e.SourceID, &e.TargetID, &typ, &e.Weight, &metaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan graph edge: %w", err)
		}
		e.Type = EdgeType(typ)
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal edge metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// NodeDegree returns the outgoing edge count for a node.
func (s *Store) NodeDegree(ctx context.Context, nodeID string) (int, error) {
	if s.unavailable {
		return 0, ErrStoreUnavailable
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_edges WHERE source_id = ?`, nodeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count node degree: %w", err)
	}
	return count, nil
}

// DeleteEdge removes a single edge by ID, used by curation when decayed
// weight drops below the delete threshold.
func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM graph_edges WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete graph edge: %w", err)
		}
		return nil
	})
}

// UpdateEdgeWeight rewrites an edge's weight, used by curation's temporal
// decay pass.
func (s *Store) UpdateEdgeWeight(ctx context.Context, id string, weight float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE graph_edges SET weight = ? WHERE id = ?`, weight, id)
		if err != nil {
			return fmt.Errorf("update edge weight: %w", err)
		}
		return nil
	})
}

// DeleteNode removes a node and its edges and observation links.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM graph_edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
			return fmt.Errorf("cascade delete edges for node %s: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM graph_node_observations WHERE node_id = ?`, id); err != nil {
			return fmt.Errorf("cascade delete observation links for node %s: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM graph_nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete graph node: %w", err)
		}
		return nil
	})
}
