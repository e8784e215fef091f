package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertToolRegistryEntry inserts or updates a known tool's metadata,
// preserving its existing usage_count and last_used_at.
func (s *Store) UpsertToolRegistryEntry(ctx context.Context, e *ToolRegistryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tool_registry (name, project_hash, type, scope, source, description, server_name, usage_count, last_used_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL)
			ON CONFLICT(name, project_hash) DO UPDATE SET
				type = excluded.type,
				scope = excluded.scope,
				source = excluded.source,
				description = excluded.description,
				server_name = excluded.server_name
		`, e.Name, e.ProjectHash, string(e.Type), string(e.Scope), e.Source, e.Description, e.ServerName)
		if err != nil {
			return fmt.Errorf("upsert tool registry entry: %w", err)
		}
		return nil
	})
}

// RecordToolUsage appends a usage event and bumps the registry entry's
// running counter and last-used timestamp, used by discover_tools ranking
// (spec.md §4.8).
func (s *Store) RecordToolUsage(ctx context.Context, toolName, projectHash string) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO tool_usage_events (tool_name, project_hash, timestamp) VALUES (?, ?, ?)
		`, toolName, projectHash, now); err != nil {
			return fmt.Errorf("insert tool usage event: %w", err)
		}
		if _, err := tx.Exec(`
			UPDATE tool_registry SET usage_count = usage_count + 1, last_used_at = ?
			WHERE name = ? AND project_hash = ?
		`, now, toolName, projectHash); err != nil {
			return fmt.Errorf("bump tool registry usage: %w", err)
		}
		return nil
	})
}

// GetToolRegistryEntry returns a single entry by (name, projectHash).
// projectHash may be empty to look up a global entry.
func (s *Store) GetToolRegistryEntry(ctx context.Context, name, projectHash string) (*ToolRegistryEntry, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	var e ToolRegistryEntry
	var typ, scope string
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT name, project_hash, type, scope, source, description, server_name, usage_count, last_used_at
		FROM tool_registry WHERE name = ? AND project_hash = ?
	`, name, projectHash).Scan(&e.Name, &e.ProjectHash, &typ, &scope, &e.Source, &e.Description, &e.ServerName, &e.UsageCount, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool registry entry: %w", err)
	}
	e.Type = ToolType(typ)
	e.Scope = ToolScope(scope)
	if lastUsed.Valid {
		t := lastUsed.Time
		e.LastUsedAt = &t
	}
	return &e, nil
}

// ListToolRegistry returns entries visible to a project: global entries
// plus that project's own, ranked by usage_count descending for
// discover_tools (spec.md §4.8).
func (s *Store) ListToolRegistry(ctx context.Context, projectHash string) ([]*ToolRegistryEntry, error) {
	if s.unavailable {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, project_hash, type, scope, source, description, server_name, usage_count, last_used_at
		FROM tool_registry WHERE project_hash = '' OR project_hash = ?
		ORDER BY usage_count DESC, name ASC
	`, projectHash)
	if err != nil {
		return nil, fmt.Errorf("list tool registry: %w", err)
	}
	defer rows.Close()

	var out []*ToolRegistryEntry
	for rows.Next() {
		var e ToolRegistryEntry
		var typ, scope string
		var lastUsed sql.NullTime
		if err := rows.Scan(&e.Name, &e.ProjectHash, &typ, &scope, &e.Source, &e.Description, &e.ServerName, &e.UsageCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan tool registry entry: %w", err)
		}
		e.Type = ToolType(typ)
		e.Scope = ToolScope(scope)
		if lastUsed.Valid {
			t := lastUsed.Time
			e.LastUsedAt = &t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
