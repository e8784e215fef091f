package ingest

import (
	"context"
	"log"
	"testing"

	"github.com/laminark/laminark/internal/redact"
	"github.com/laminark/laminark/internal/store"
)

type fakeStore struct {
	observations []*store.Observation
	sessions     []*store.Session
	ended        map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{ended: map[string]string{}}
}

func (f *fakeStore) CreateObservation(ctx context.Context, o *store.Observation) (*store.Observation, error) {
	o.ID = "obs-" + string(rune('a'+len(f.observations)))
	f.observations = append(f.observations, o)
	return o, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, id string) (*store.Session, error) {
	s := &store.Session{ID: id}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeStore) EndSession(ctx context.Context, id, summary string) error {
	f.ended[id] = summary
	return nil
}

func noSelfNames() map[string]bool { return map[string]bool{} }

func testHook(fs *fakeStore) *HookIngest {
	return New(fs, redact.NewRedactor(), noSelfNames, log.New(log.Writer(), "", 0))
}

func TestHandleWriteAlwaysAdmitted(t *testing.T) {
	fs := newFakeStore()
	h := testHook(fs)
	res := h.Handle(context.Background(), EventPostToolUse, "p1", ToolEvent{
		ToolName: "Write",
		Input:    map[string]any{"file_path": "main.go", "content": "package main"},
	})
	if !res.Admitted {
		t.Fatal("expected Write to be admitted")
	}
	if len(fs.observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(fs.observations))
	}
}

func TestHandleRejectsExcludedPaths(t *testing.T) {
	fs := newFakeStore()
	h := testHook(fs)
	res := h.Handle(context.Background(), EventPostToolUse, "p1", ToolEvent{
		ToolName: "Read",
		Input:    map[string]any{"file_path": "/home/user/.env"},
	})
	if res.Admitted {
		t.Fatal("expected excluded path to be rejected")
	}
	if len(fs.observations) != 0 {
		t.Fatalf("expected no observations, got %d", len(fs.observations))
	}
}

func TestHandleRejectsSelfReferentialTools(t *testing.T) {
	fs := newFakeStore()
	h := New(fs, redact.NewRedactor(), func() map[string]bool { return map[string]bool{"save_memory": true} }, log.New(log.Writer(), "", 0))
	res := h.Handle(context.Background(), EventPostToolUse, "p1", ToolEvent{
		ToolName: "save_memory",
		Input:    map[string]any{"content": "hello"},
	})
	if res.Admitted {
		t.Fatal("expected self-referential tool call to be rejected")
	}
}

func TestHandleRedactsSecretsBeforePersisting(t *testing.T) {
	fs := newFakeStore()
	h := testHook(fs)
	h.Handle(context.Background(), EventPostToolUse, "p1", ToolEvent{
		ToolName: "Write",
		Input:    map[string]any{"file_path": "config.go", "content": "API_KEY=sk-liveSecretValue1234567890"},
	})
	if len(fs.observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(fs.observations))
	}
	content := fs.observations[0].Content
	if contains(content, "sk-liveSecretValue1234567890") {
		t.Errorf("expected secret to be redacted from persisted content, got %q", content)
	}
}

func TestHandleSessionLifecycle(t *testing.T) {
	fs := newFakeStore()
	h := testHook(fs)
	res := h.Handle(context.Background(), EventSessionStart, "p1", ToolEvent{SessionID: "sess-1"})
	_ = res
	if len(fs.sessions) != 1 {
		t.Fatalf("expected session created, got %d", len(fs.sessions))
	}
	if fs.sessions[0].ID != "sess-1" {
		t.Fatalf("expected session created under the host id %q, got %q", "sess-1", fs.sessions[0].ID)
	}

	h.Handle(context.Background(), EventSessionEnd, "p1", ToolEvent{SessionID: "sess-1"})
	if _, ok := fs.ended["sess-1"]; !ok {
		t.Error("expected session end to be recorded under the same host id SessionStart used")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
