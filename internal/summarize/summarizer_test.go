package summarize

import (
	"context"
	"testing"

	"github.com/laminark/laminark/internal/store"
)

type fakeStore struct {
	obs []*store.Observation
}

func (f *fakeStore) ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error) {
	var out []*store.Observation
	for _, o := range f.obs {
		if o.SessionID == filter.SessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestSummarizePrefersWriteEditObservations(t *testing.T) {
	fs := &fakeStore{obs: []*store.Observation{
		{Title: "read some file", Source: "hook:Read", SessionID: "s1"},
		{Title: "fixed the login bug", Source: "hook:Edit", SessionID: "s1"},
		{Title: "noise", Source: "hook:Bash", SessionID: "s1"},
	}}
	s := New(fs)
	summary, err := s.Summarize(context.Background(), "p1", "s1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if summary[:len("fixed the login bug")] != "fixed the login bug" {
		t.Fatalf("expected change observation first, got %q", summary)
	}
}

func TestSummarizeEmptySessionReturnsEmptyString(t *testing.T) {
	fs := &fakeStore{}
	s := New(fs)
	summary, err := s.Summarize(context.Background(), "p1", "s1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "" {
		t.Fatalf("expected empty summary, got %q", summary)
	}
}
