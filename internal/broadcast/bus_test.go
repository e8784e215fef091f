package broadcast

import (
	"testing"
	"time"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestPublishDeliversToLiveSubscriber(t *testing.T) {
	b := newTestBus(t)
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish("proj1", "topic_shift", map[string]any{"stash_id": "s1"})

	select {
	case ev := <-ch:
		if ev.ProjectHash != "proj1" || ev.Kind != "topic_shift" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSinceReplaysBufferedEventsAfterLastEventID(t *testing.T) {
	b := newTestBus(t)
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish("proj1", "note", map[string]any{"i": i})
		<-ch // drain so publishes are observably committed to the ring before Since
	}

	all := b.Since(0)
	if len(all) != 5 {
		t.Fatalf("want 5 buffered events, got %d", len(all))
	}

	replay := b.Since(all[2].ID)
	if len(replay) != 2 {
		t.Fatalf("want 2 events after id %d, got %d", all[2].ID, len(replay))
	}
	for _, ev := range replay {
		if ev.ID <= all[2].ID {
			t.Fatalf("replayed event %d should be newer than %d", ev.ID, all[2].ID)
		}
	}
}

func TestRingBufferEvictsOldestBeyondCapacity(t *testing.T) {
	b := newTestBus(t)
	ch, unsub := b.Subscribe()
	defer unsub()

	total := ringBufferSize + 10
	for i := 0; i < total; i++ {
		b.Publish("proj1", "note", map[string]any{"i": i})
		<-ch
	}

	all := b.Since(0)
	if len(all) != ringBufferSize {
		t.Fatalf("want ring capped at %d, got %d", ringBufferSize, len(all))
	}
	if all[0].ID != uint64(total-ringBufferSize+1) {
		t.Fatalf("want oldest surviving event id %d, got %d", total-ringBufferSize+1, all[0].ID)
	}
}
