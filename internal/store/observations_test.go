package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateObservationDedupesByContentHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "t", Content: "same content", Source: "hook"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "t", Content: "same content", Source: "hook"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected dedup to return same observation, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateObservationDoesNotDedupePastWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stale, err := s.CreateObservation(ctx, &Observation{
		ProjectHash: "p1", Title: "t", Content: "same content", Source: "hook",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}
	fresh, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "t", Content: "same content", Source: "hook"})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	if stale.ID == fresh.ID {
		t.Error("expected content re-observed outside the dedup window to insert a new observation")
	}
}

func TestObservationsAreProjectIsolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Content: "alpha", Source: "hook"}); err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if _, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p2", Content: "beta", Source: "hook"}); err != nil {
		t.Fatalf("create p2: %v", err)
	}

	p1, err := s.ListObservations(ctx, ObservationFilter{ProjectHash: "p1"})
	if err != nil {
		t.Fatalf("list p1: %v", err)
	}
	if len(p1) != 1 || p1[0].Content != "alpha" {
		t.Fatalf("expected only p1's observation, got %+v", p1)
	}
}

func TestSoftDeleteHidesFromDefaultReads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obs, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Content: "gone soon", Source: "hook"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SoftDelete(ctx, obs.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := s.GetObservation(ctx, obs.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after soft delete, got %v", err)
	}

	got, err := s.GetObservationIncludingDeleted(ctx, obs.ID)
	if err != nil {
		t.Fatalf("get including deleted: %v", err)
	}
	if got.Visible() {
		t.Error("expected soft-deleted observation to report Visible() == false")
	}
}

func TestSearchFTSRanksTitleMatchesHigher(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "database migration plan", Content: "unrelated body text", Source: "hook"}); err != nil {
		t.Fatalf("create titled: %v", err)
	}
	if _, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "unrelated title", Content: "a document mentioning migration in passing", Source: "hook"}); err != nil {
		t.Fatalf("create bodied: %v", err)
	}

	matches, err := s.SearchFTS(ctx, "p1", "migration", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Observation.Title != "database migration plan" {
		t.Errorf("expected title match ranked first, got %q", matches[0].Observation.Title)
	}
}

func TestUpdateObservationRefreshesFTSIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obs, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Title: "original", Content: "zephyr keyword", Source: "hook"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	obs.Content = "no longer mentions the old term"
	if err := s.UpdateObservation(ctx, obs); err != nil {
		t.Fatalf("update: %v", err)
	}

	matches, err := s.SearchFTS(ctx, "p1", "zephyr", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected stale term to no longer match after update, got %d matches", len(matches))
	}
}
