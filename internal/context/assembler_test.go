package context

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/laminark/laminark/internal/store"
)

type fakeStore struct {
	observations []*store.Observation
	sessions     map[string]*store.Session
	stashes      []*store.Stash
	tools        []*store.ToolRegistryEntry
}

func (f *fakeStore) SearchFTS(ctx context.Context, projectHash, query string, limit int) ([]store.FTSMatch, error) {
	var out []store.FTSMatch
	for _, o := range f.observations {
		if o.ProjectHash != projectHash {
			continue
		}
		if strings.Contains(strings.ToLower(o.Title+o.Content), strings.ToLower(query)) {
			out = append(out, store.FTSMatch{Observation: o, Score: 1})
		}
	}
	return out, nil
}

func (f *fakeStore) KNN(ctx context.Context, projectHash string, query []float32, limit int) ([]store.VectorMatch, error) {
	return nil, nil
}

func (f *fakeStore) GetObservation(ctx context.Context, id string) (*store.Observation, error) {
	for _, o := range f.observations {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) HasVectorSupport() bool { return false }

func (f *fakeStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error) {
	var out []*store.Observation
	for _, o := range f.observations {
		if o.ProjectHash == filter.ProjectHash {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListStashes(ctx context.Context, projectHash string, includeResumed bool) ([]*store.Stash, error) {
	return f.stashes, nil
}

func (f *fakeStore) ListToolRegistry(ctx context.Context, projectHash string) ([]*store.ToolRegistryEntry, error) {
	return f.tools, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, context.Canceled
}

func TestAssembleIncludesPreviousSessionSummary(t *testing.T) {
	fs := &fakeStore{
		sessions: map[string]*store.Session{
			"sess-old": {ID: "sess-old", Summary: "fixed the login bug"},
		},
		observations: []*store.Observation{
			{ID: "o1", ProjectHash: "p1", SessionID: "sess-old", Title: "Fixed login bug", CreatedAt: time.Now()},
		},
	}
	a := New(fs, fakeEmbedder{})
	out, err := a.Assemble(context.Background(), "p1", "sess-new")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(out, "fixed the login bug") {
		t.Errorf("expected previous session summary in output, got: %s", out)
	}
}

func TestAssembleListsLiveStashes(t *testing.T) {
	fs := &fakeStore{
		sessions: map[string]*store.Session{},
		stashes: []*store.Stash{
			{ID: "stash-1", TopicLabel: "auth refactor", Summary: "mid-refactor of auth.go"},
		},
	}
	a := New(fs, fakeEmbedder{})
	out, err := a.Assemble(context.Background(), "p1", "sess-new")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(out, "auth refactor") || !strings.Contains(out, "stash-1") {
		t.Errorf("expected stash listing in output, got: %s", out)
	}
}

func TestAssembleDedupesMCPToolsUnderServer(t *testing.T) {
	fs := &fakeStore{
		sessions: map[string]*store.Session{},
		tools: []*store.ToolRegistryEntry{
			{Name: "github", Type: store.ToolTypeMCPServer, ServerName: "github", Description: "GitHub MCP server"},
			{Name: "github.create_issue", Type: store.ToolTypeMCPTool, ServerName: "github", Description: "create an issue"},
			{Name: "recall", Type: store.ToolTypeBuiltin, Description: "unified read"},
		},
	}
	a := New(fs, fakeEmbedder{})
	out, err := a.Assemble(context.Background(), "p1", "sess-new")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if strings.Contains(out, "github.create_issue") {
		t.Errorf("expected child tool entry to be suppressed in favor of its MCP server, got: %s", out)
	}
	if !strings.Contains(out, "github") || !strings.Contains(out, "recall") {
		t.Errorf("expected server and builtin tool entries in output, got: %s", out)
	}
}

func TestAssembleRespectsTotalBudget(t *testing.T) {
	fs := &fakeStore{sessions: map[string]*store.Session{}}
	for i := 0; i < 20; i++ {
		fs.stashes = append(fs.stashes, &store.Stash{
			ID:         "stash",
			TopicLabel: strings.Repeat("x", 400),
			Summary:    strings.Repeat("y", 400),
		})
	}
	a := New(fs, fakeEmbedder{})
	out, err := a.Assemble(context.Background(), "p1", "sess-new")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(out) > totalBudget {
		t.Errorf("expected output within %d char budget, got %d", totalBudget, len(out))
	}
}
