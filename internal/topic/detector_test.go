package topic

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/laminark/laminark/internal/store"
)

type fakeTopicStore struct {
	decisions     []*store.ShiftDecision
	stashes       []*store.Stash
	notifications []string
	observations  []*store.Observation
}

func (f *fakeTopicStore) RecordShiftDecision(ctx context.Context, d *store.ShiftDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeTopicStore) CreateStash(ctx context.Context, st *store.Stash) (*store.Stash, error) {
	st.ID = "stash-1"
	f.stashes = append(f.stashes, st)
	return st, nil
}

func (f *fakeTopicStore) AddNotification(ctx context.Context, projectHash, text string) error {
	f.notifications = append(f.notifications, text)
	return nil
}

func (f *fakeTopicStore) ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error) {
	return f.observations, nil
}

type fakeBus struct {
	events []string
}

func (b *fakeBus) Publish(projectHash, kind string, payload map[string]any) {
	b.events = append(b.events, kind)
}

func obsAt(id string, t time.Time, vec []float32) *store.Observation {
	return &store.Observation{ID: id, Title: "obs " + id, CreatedAt: t, Embedding: vec, SessionID: "s1"}
}

func TestDetectorStashesOnTopicShift(t *testing.T) {
	fs := &fakeTopicStore{
		observations: []*store.Observation{
			obsAt("c", time.Now(), []float32{1, 0}),
			obsAt("b", time.Now().Add(-time.Minute), []float32{1, 0}),
			obsAt("a", time.Now().Add(-2*time.Minute), []float32{1, 0}),
		},
	}
	bus := &fakeBus{}
	d := New(fs, bus, log.New(log.Writer(), "", 0))
	ctx := context.Background()

	// First observation seeds the centroid; no shift possible yet. A shift
	// can't be declared at all until the window reaches windowMin vectors,
	// so warm it up with on-topic observations first.
	if err := d.Observe(ctx, "p1", obsAt("a", time.Now(), []float32{1, 0})); err != nil {
		t.Fatalf("observe a: %v", err)
	}
	for i := 0; i < windowMin-1; i++ {
		if err := d.Observe(ctx, "p1", obsAt("b", time.Now(), []float32{0.99, 0.01})); err != nil {
			t.Fatalf("observe warmup %d: %v", i, err)
		}
	}

	// An orthogonal vector is a large cosine distance, well past any
	// adapted threshold, and should declare a shift now that the window
	// has reached its minimum size.
	if err := d.Observe(ctx, "p1", obsAt("shift", time.Now(), []float32{0, 1})); err != nil {
		t.Fatalf("observe shift: %v", err)
	}

	if len(fs.stashes) != 1 {
		t.Fatalf("expected a stash to be created on shift, got %d", len(fs.stashes))
	}
	if len(fs.notifications) != 1 {
		t.Fatalf("expected one notification enqueued, got %d", len(fs.notifications))
	}
	if len(bus.events) != 1 || bus.events[0] != "topic_shift" {
		t.Fatalf("expected topic_shift broadcast, got %v", bus.events)
	}

	shiftedDecision := fs.decisions[len(fs.decisions)-1]
	if !shiftedDecision.Shifted {
		t.Error("expected the final recorded decision to report Shifted=true")
	}
}

func TestDetectorSuppressesShiftDuringWarmup(t *testing.T) {
	fs := &fakeTopicStore{}
	bus := &fakeBus{}
	d := New(fs, bus, log.New(log.Writer(), "", 0))
	ctx := context.Background()

	if err := d.Observe(ctx, "p1", obsAt("a", time.Now(), []float32{1, 0})); err != nil {
		t.Fatalf("observe a: %v", err)
	}
	// An orthogonal vector this early would clear any fixed threshold, but
	// the window hasn't reached windowMin yet, so no shift should fire.
	if err := d.Observe(ctx, "p1", obsAt("b", time.Now(), []float32{0, 1})); err != nil {
		t.Fatalf("observe b: %v", err)
	}

	if len(fs.stashes) != 0 {
		t.Fatalf("expected no stash during warmup, got %d", len(fs.stashes))
	}
	lastDecision := fs.decisions[len(fs.decisions)-1]
	if lastDecision.Shifted {
		t.Error("expected shift to be suppressed before the window reaches windowMin")
	}
}

func TestDetectorSkipsObservationsWithoutEmbedding(t *testing.T) {
	fs := &fakeTopicStore{}
	d := New(fs, nil, log.New(log.Writer(), "", 0))
	if err := d.Observe(context.Background(), "p1", &store.Observation{ID: "x", SessionID: "s1"}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if len(fs.decisions) != 0 {
		t.Errorf("expected no decision recorded for un-embedded observation, got %d", len(fs.decisions))
	}
}
