package store

import (
	"context"
	"testing"
)

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	sim := CosineSimilarity(v, v)
	if sim < 0.999 || sim > 1.001 {
		t.Errorf("expected similarity ~1, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if sim := CosineSimilarity(a, b); sim != 0 {
		t.Errorf("expected orthogonal similarity 0, got %v", sim)
	}
}

func TestKNNRanksByDescendingSimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	near, err := s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Content: "near", Source: "hook", Embedding: []float32{1, 0, 0}, EmbeddingModel: "test"})
	if err != nil {
		t.Fatalf("create near: %v", err)
	}
	_, err = s.CreateObservation(ctx, &Observation{ProjectHash: "p1", Content: "far", Source: "hook", Embedding: []float32{0, 1, 0}, EmbeddingModel: "test"})
	if err != nil {
		t.Fatalf("create far: %v", err)
	}

	matches, err := s.KNN(ctx, "p1", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("knn: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ObservationID != near.ID {
		t.Errorf("expected nearest vector ranked first, got %s", matches[0].ObservationID)
	}
}
