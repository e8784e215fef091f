package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeToolsStore struct {
	observations  map[string]*store.Observation
	stashes       []*store.Stash
	nodes         map[string]*store.GraphNode
	edges         map[string][]*store.GraphEdge
	nodeObsByID   map[string][]*store.Observation
	registry      []*store.ToolRegistryEntry
	notifications []*store.Notification
}

func newFakeToolsStore() *fakeToolsStore {
	return &fakeToolsStore{
		observations: map[string]*store.Observation{},
		nodes:        map[string]*store.GraphNode{},
		edges:        map[string][]*store.GraphEdge{},
		nodeObsByID:  map[string][]*store.Observation{},
	}
}

func (f *fakeToolsStore) SearchFTS(ctx context.Context, projectHash, query string, limit int) ([]store.FTSMatch, error) {
	var out []store.FTSMatch
	for _, o := range f.observations {
		if o.ProjectHash != projectHash || !o.Visible() {
			continue
		}
		if strings.Contains(strings.ToLower(o.Title+o.Content), strings.ToLower(query)) {
			out = append(out, store.FTSMatch{Observation: o, Score: 1})
		}
	}
	return out, nil
}

func (f *fakeToolsStore) KNN(ctx context.Context, projectHash string, query []float32, limit int) ([]store.VectorMatch, error) {
	return nil, nil
}

func (f *fakeToolsStore) GetObservation(ctx context.Context, id string) (*store.Observation, error) {
	if o, ok := f.observations[id]; ok && o.Visible() {
		return o, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeToolsStore) HasVectorSupport() bool { return false }

func (f *fakeToolsStore) CreateObservation(ctx context.Context, o *store.Observation) (*store.Observation, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ContentHash == "" {
		o.ContentHash = store.ContentHash(o.Title, o.Content)
	}
	for _, existing := range f.observations {
		if existing.ProjectHash == o.ProjectHash && existing.ContentHash == o.ContentHash && existing.Visible() {
			return existing, nil
		}
	}
	f.observations[o.ID] = o
	return o, nil
}

func (f *fakeToolsStore) GetObservationIncludingDeleted(ctx context.Context, id string) (*store.Observation, error) {
	if o, ok := f.observations[id]; ok {
		return o, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeToolsStore) ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error) {
	var out []*store.Observation
	for _, o := range f.observations {
		if o.ProjectHash != filter.ProjectHash {
			continue
		}
		if !filter.IncludeDeleted && !o.Visible() {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeToolsStore) SoftDelete(ctx context.Context, id string) error {
	o, ok := f.observations[id]
	if !ok {
		return store.ErrNotFound
	}
	now := o.CreatedAt
	o.DeletedAt = &now
	return nil
}

func (f *fakeToolsStore) Restore(ctx context.Context, id string) error {
	o, ok := f.observations[id]
	if !ok {
		return store.ErrNotFound
	}
	o.DeletedAt = nil
	return nil
}

func (f *fakeToolsStore) ListStashes(ctx context.Context, projectHash string, includeResumed bool) ([]*store.Stash, error) {
	return f.stashes, nil
}

func (f *fakeToolsStore) ListNodes(ctx context.Context, filter store.NodeFilter) ([]*store.GraphNode, error) {
	var out []*store.GraphNode
	for _, n := range f.nodes {
		if n.ProjectHash != filter.ProjectHash {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeToolsStore) ListEdges(ctx context.Context, sourceID string) ([]*store.GraphEdge, error) {
	return f.edges[sourceID], nil
}

func (f *fakeToolsStore) NodeDegree(ctx context.Context, nodeID string) (int, error) {
	return len(f.edges[nodeID]), nil
}

func (f *fakeToolsStore) NodeObservations(ctx context.Context, nodeID string, limit int) ([]*store.Observation, error) {
	return f.nodeObsByID[nodeID], nil
}

func (f *fakeToolsStore) ListToolRegistry(ctx context.Context, projectHash string) ([]*store.ToolRegistryEntry, error) {
	return f.registry, nil
}

func (f *fakeToolsStore) ConsumePendingNotifications(ctx context.Context, projectHash string) ([]*store.Notification, error) {
	out := f.notifications
	f.notifications = nil
	return out, nil
}

type fakeToolsEmbedder struct{}

func (fakeToolsEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding unavailable")
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func callArgs(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestSaveMemoryDedupsByContentHash(t *testing.T) {
	fs := newFakeToolsStore()
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}
	handler := handleSaveMemory(h)

	res1, err := handler(context.Background(), callArgs(map[string]any{"content": "fixed the bug", "title": "bugfix"}))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	res2, err := handler(context.Background(), callArgs(map[string]any{"content": "fixed the bug", "title": "bugfix"}))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if len(fs.observations) != 1 {
		t.Errorf("expected dedup to leave exactly 1 observation, got %d", len(fs.observations))
	}
	if textOf(t, res1) == "" || textOf(t, res2) == "" {
		t.Error("expected non-empty responses")
	}
}

func TestRecallSearchFindsSavedObservation(t *testing.T) {
	fs := newFakeToolsStore()
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}
	fs.CreateObservation(context.Background(), &store.Observation{ProjectHash: "p1", Title: "auth rewrite", Content: "switched to JWT"})

	res, err := handleRecall(h)(context.Background(), callArgs(map[string]any{"action": "search", "query": "JWT"}))
	if err != nil {
		t.Fatalf("recall search: %v", err)
	}
	if !strings.Contains(textOf(t, res), "auth rewrite") {
		t.Errorf("expected search to surface the saved observation, got: %s", textOf(t, res))
	}
}

func TestRecallPurgeAndRestore(t *testing.T) {
	fs := newFakeToolsStore()
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}
	obs, _ := fs.CreateObservation(context.Background(), &store.Observation{ProjectHash: "p1", Title: "temp", Content: "temp content"})

	if _, err := handleRecall(h)(context.Background(), callArgs(map[string]any{"action": "purge", "id": obs.ID})); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if fs.observations[obs.ID].Visible() {
		t.Error("expected observation to be soft-deleted after purge")
	}

	if _, err := handleRecall(h)(context.Background(), callArgs(map[string]any{"action": "restore", "id": obs.ID})); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !fs.observations[obs.ID].Visible() {
		t.Error("expected observation to be visible again after restore")
	}
}

func TestTopicContextListsStashes(t *testing.T) {
	fs := newFakeToolsStore()
	fs.stashes = []*store.Stash{{ID: "stash-1", TopicLabel: "refactor auth", Summary: "mid-refactor"}}
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}

	res, err := handleTopicContext(h)(context.Background(), callArgs(map[string]any{}))
	if err != nil {
		t.Fatalf("topic_context: %v", err)
	}
	if !strings.Contains(textOf(t, res), "refactor auth") {
		t.Errorf("expected stash topic label in output, got: %s", textOf(t, res))
	}
}

func TestQueryGraphFindsExactMatch(t *testing.T) {
	fs := newFakeToolsStore()
	fs.nodes["n1"] = &store.GraphNode{ID: "n1", ProjectHash: "p1", Name: "main.go", Type: store.NodeTypeFile}
	fs.nodes["n2"] = &store.GraphNode{ID: "n2", ProjectHash: "p1", Name: "Edit", Type: store.NodeTypeTool}
	fs.edges["n2"] = []*store.GraphEdge{{ID: "e1", SourceID: "n2", TargetID: "n1", Type: store.EdgeTypeUses, Weight: 0.8}}
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}

	res, err := handleQueryGraph(h)(context.Background(), callArgs(map[string]any{"query": "Edit", "depth": float64(2)}))
	if err != nil {
		t.Fatalf("query_graph: %v", err)
	}
	out := textOf(t, res)
	if !strings.Contains(out, "Edit") || !strings.Contains(out, "main.go") {
		t.Errorf("expected traversal from Edit to main.go, got: %s", out)
	}
}

func TestGraphStatsReportsCounts(t *testing.T) {
	fs := newFakeToolsStore()
	fs.nodes["n1"] = &store.GraphNode{ID: "n1", ProjectHash: "p1", Name: "main.go", Type: store.NodeTypeFile}
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}

	res, err := handleGraphStats(h)(context.Background(), callArgs(map[string]any{}))
	if err != nil {
		t.Fatalf("graph_stats: %v", err)
	}
	if !strings.Contains(textOf(t, res), "Nodes: 1") {
		t.Errorf("expected node count in output, got: %s", textOf(t, res))
	}
}

func TestDiscoverToolsDedupesMCPChildren(t *testing.T) {
	fs := newFakeToolsStore()
	fs.registry = []*store.ToolRegistryEntry{
		{Name: "github", Type: store.ToolTypeMCPServer, ServerName: "github", Description: "GitHub MCP server for issues and PRs"},
		{Name: "github.create_issue", Type: store.ToolTypeMCPTool, ServerName: "github", Description: "create an issue"},
	}
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}

	res, err := handleDiscoverTools(h)(context.Background(), callArgs(map[string]any{"query": "issue"}))
	if err != nil {
		t.Fatalf("discover_tools: %v", err)
	}
	out := textOf(t, res)
	if strings.Contains(out, "github.create_issue") {
		t.Errorf("expected child tool suppressed in favor of server entry, got: %s", out)
	}
	if !strings.Contains(out, "github") {
		t.Errorf("expected server entry in output, got: %s", out)
	}
}

func TestNotificationsPrependedToResponse(t *testing.T) {
	fs := newFakeToolsStore()
	fs.notifications = []*store.Notification{{ID: "n1", ProjectHash: "p1", Text: "previous context stashed"}}
	h := &Handlers{Store: fs, Embedder: fakeToolsEmbedder{}, ProjectHash: "p1"}

	res, err := handleTopicContext(h)(context.Background(), callArgs(map[string]any{}))
	if err != nil {
		t.Fatalf("topic_context: %v", err)
	}
	if !strings.Contains(textOf(t, res), "previous context stashed") {
		t.Errorf("expected pending notification prepended, got: %s", textOf(t, res))
	}
	if len(fs.notifications) != 0 {
		t.Error("expected notification to be consumed (removed) after the call")
	}
}
