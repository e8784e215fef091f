// Package tools implements Laminark's MCP tool surface: the request/response
// API the host agent calls to save, recall, and browse memory (spec.md
// §4.8).
package tools

import (
	"context"

	"github.com/laminark/laminark/internal/search"
	"github.com/laminark/laminark/internal/store"
)

// Store is the subset of *store.Store the tool surface reads and writes
// through, narrowed for testability against a fake.
type Store interface {
	search.Store

	CreateObservation(ctx context.Context, o *store.Observation) (*store.Observation, error)
	GetObservationIncludingDeleted(ctx context.Context, id string) (*store.Observation, error)
	ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error)
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error

	ListStashes(ctx context.Context, projectHash string, includeResumed bool) ([]*store.Stash, error)

	ListNodes(ctx context.Context, filter store.NodeFilter) ([]*store.GraphNode, error)
	ListEdges(ctx context.Context, sourceID string) ([]*store.GraphEdge, error)
	NodeDegree(ctx context.Context, nodeID string) (int, error)
	NodeObservations(ctx context.Context, nodeID string, limit int) ([]*store.Observation, error)

	ListToolRegistry(ctx context.Context, projectHash string) ([]*store.ToolRegistryEntry, error)

	ConsumePendingNotifications(ctx context.Context, projectHash string) ([]*store.Notification, error)
}

// Embedder is the narrow embedding dependency HybridSearch needs.
type Embedder = search.Embedder

// Names returns the tool names registered by this package, used as the
// self-referential set HookIngest excludes from observation capture (a
// hook seeing Laminark's own MCP calls back would otherwise recurse).
func Names() map[string]bool {
	return map[string]bool{
		"save_memory":    true,
		"recall":         true,
		"topic_context":  true,
		"query_graph":    true,
		"graph_stats":    true,
		"discover_tools": true,
	}
}
