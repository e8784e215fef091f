package search

import (
	"context"
	"errors"
	"testing"

	"github.com/laminark/laminark/internal/store"
)

type fakeStore struct {
	fts            []store.FTSMatch
	knn            []store.VectorMatch
	vectorSupport  bool
	observationsByID map[string]*store.Observation
}

func (f *fakeStore) SearchFTS(ctx context.Context, projectHash, query string, limit int) ([]store.FTSMatch, error) {
	return f.fts, nil
}

func (f *fakeStore) KNN(ctx context.Context, projectHash string, query []float32, limit int) ([]store.VectorMatch, error) {
	return f.knn, nil
}

func (f *fakeStore) GetObservation(ctx context.Context, id string) (*store.Observation, error) {
	obs, ok := f.observationsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return obs, nil
}

func (f *fakeStore) HasVectorSupport() bool { return f.vectorSupport }

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func obs(id string) *store.Observation {
	return &store.Observation{ID: id, Content: "content for " + id}
}

func TestHybridSearchRanksItemsInBothLegsHighest(t *testing.T) {
	st := &fakeStore{
		vectorSupport: true,
		fts: []store.FTSMatch{
			{Observation: obs("a"), Score: 10},
			{Observation: obs("b"), Score: 5},
		},
		knn: []store.VectorMatch{
			{ObservationID: "a", Score: 0.9},
			{ObservationID: "c", Score: 0.8},
		},
		observationsByID: map[string]*store.Observation{
			"a": obs("a"), "b": obs("b"), "c": obs("c"),
		},
	}
	results, err := HybridSearch(context.Background(), st, &fakeEmbedder{vec: []float32{1, 0}}, "p1", "query", 10)
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}
	if results[0].Observation.ID != "a" {
		t.Fatalf("expected observation present in both legs ranked first, got %s", results[0].Observation.ID)
	}
	if results[0].MatchType != MatchTypeHybrid {
		t.Errorf("expected hybrid match type for dual-leg hit, got %s", results[0].MatchType)
	}
}

func TestHybridSearchDegradesToKeywordOnlyWithoutVectorSupport(t *testing.T) {
	st := &fakeStore{
		vectorSupport: false,
		fts: []store.FTSMatch{
			{Observation: obs("a"), Score: 10},
		},
		observationsByID: map[string]*store.Observation{"a": obs("a")},
	}
	results, err := HybridSearch(context.Background(), st, &fakeEmbedder{err: errors.New("unreachable")}, "p1", "query", 10)
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) != 1 || results[0].MatchType != MatchTypeFTS {
		t.Fatalf("expected single keyword-only result, got %+v", results)
	}
}

func TestHybridSearchRespectsLimit(t *testing.T) {
	st := &fakeStore{
		vectorSupport: false,
		fts: []store.FTSMatch{
			{Observation: obs("a"), Score: 10},
			{Observation: obs("b"), Score: 9},
			{Observation: obs("c"), Score: 8},
		},
		observationsByID: map[string]*store.Observation{
			"a": obs("a"), "b": obs("b"), "c": obs("c"),
		},
	}
	results, err := HybridSearch(context.Background(), st, &fakeEmbedder{}, "p1", "query", 2)
	if err != nil {
		t.Fatalf("hybrid search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit of 2 results, got %d", len(results))
	}
}
