package embedding

import (
	"context"
	"log"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(log.Writer(), "[test] ", 0)
}

func TestWorkerEmbedReturnsDeterministicVector(t *testing.T) {
	w := NewWorker(NewBackend(ModeLocal, testLogger()), testLogger())
	defer w.Shutdown()

	v1, err := w.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := w.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed again: %v", err)
	}
	if len(v1) != len(v2) {
		t.Fatalf("expected equal-length vectors, got %d and %d", len(v1), len(v2))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic embedding, differs at index %d", i)
		}
	}
}

func TestWorkerEmbedBatchPreservesOrder(t *testing.T) {
	w := NewWorker(NewBackend(ModeLocal, testLogger()), testLogger())
	defer w.Shutdown()

	texts := []string{"alpha", "beta", "gamma"}
	vecs, err := w.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	single, err := w.Embed(context.Background(), "beta")
	if err != nil {
		t.Fatalf("embed single: %v", err)
	}
	for i := range single {
		if single[i] != vecs[1][i] {
			t.Fatalf("expected batch result for 'beta' to match single embed")
		}
	}
}

func TestKeywordOnlyBackendDegradesWithoutError(t *testing.T) {
	b := NewBackend(ModeKeywordOnly, testLogger())
	if b.Name() != "keyword-only" {
		t.Fatalf("expected keyword-only backend, got %q", b.Name())
	}
	if _, err := b.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected keyword-only backend to refuse embedding")
	}
}

func TestShutdownDrainsQueuedRequests(t *testing.T) {
	w := NewWorker(NewBackend(ModeLocal, testLogger()), testLogger())
	done := make(chan error, 1)
	go func() {
		_, err := w.Embed(context.Background(), "queued before shutdown")
		done <- err
	}()
	w.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("expected queued request to drain cleanly, got %v", err)
	}
}
