// Package search fuses keyword and vector retrieval into a single ranked
// result list using Reciprocal Rank Fusion.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/laminark/laminark/internal/embedding"
	"github.com/laminark/laminark/internal/store"
)

// rrfK is RRF's smoothing constant. 60 is the value from the original RRF
// paper and the one the rest of the corpus's hybrid search reference
// implementation uses; lower values would overweight rank-1 hits.
const rrfK = 60

// MatchType tags which leg(s) of hybrid search produced a result.
type MatchType string

const (
	MatchTypeHybrid MatchType = "hybrid"
	MatchTypeFTS    MatchType = "fts"
	MatchTypeVector MatchType = "vector"
)

// Result is a single ranked hit from HybridSearch.
type Result struct {
	Observation *store.Observation
	Score       float64
	MatchType   MatchType
	Snippet     string
}

// Store is the subset of *store.Store HybridSearch depends on, narrowed so
// this package can be tested against a fake.
type Store interface {
	SearchFTS(ctx context.Context, projectHash, query string, limit int) ([]store.FTSMatch, error)
	KNN(ctx context.Context, projectHash string, query []float32, limit int) ([]store.VectorMatch, error)
	GetObservation(ctx context.Context, id string) (*store.Observation, error)
	HasVectorSupport() bool
}

// Embedder is the subset of *embedding.Worker HybridSearch depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embedding.Worker)(nil)

// HybridSearch runs FTS and (if available) vector search in parallel legs,
// fuses them with Reciprocal Rank Fusion, and returns the top `limit`
// results ordered by fused score descending (spec.md §4.3). If the
// embedding backend cannot produce a query vector, HybridSearch degrades
// to keyword-only search rather than failing.
func HybridSearch(ctx context.Context, st Store, embedder Embedder, projectHash, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	fetchLimit := limit * 4

	ftsMatches, err := st.SearchFTS(ctx, projectHash, query, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}

	var vecMatches []store.VectorMatch
	if st.HasVectorSupport() {
		queryVec, embErr := embedder.Embed(ctx, query)
		if embErr == nil && len(queryVec) > 0 {
			vecMatches, err = st.KNN(ctx, projectHash, queryVec, fetchLimit)
			if err != nil {
				return nil, fmt.Errorf("knn search: %w", err)
			}
		}
	}

	type fused struct {
		id        string
		score     float64
		inFTS     bool
		inVector  bool
	}
	byID := make(map[string]*fused)
	order := make([]string, 0, len(ftsMatches)+len(vecMatches))

	for rank, m := range ftsMatches {
		f, ok := byID[m.Observation.ID]
		if !ok {
			f = &fused{id: m.Observation.ID}
			byID[m.Observation.ID] = f
			order = append(order, m.Observation.ID)
		}
		f.inFTS = true
		f.score += 1.0 / float64(rrfK+rank+1)
	}
	for rank, m := range vecMatches {
		f, ok := byID[m.ObservationID]
		if !ok {
			f = &fused{id: m.ObservationID}
			byID[m.ObservationID] = f
			order = append(order, m.ObservationID)
		}
		f.inVector = true
		f.score += 1.0 / float64(rrfK+rank+1)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byID[order[i]].score > byID[order[j]].score
	})
	if len(order) > limit {
		order = order[:limit]
	}

	ftsByID := make(map[string]*store.Observation, len(ftsMatches))
	for _, m := range ftsMatches {
		ftsByID[m.Observation.ID] = m.Observation
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		f := byID[id]
		obs := ftsByID[id]
		if obs == nil {
			loaded, err := st.GetObservation(ctx, id)
			if err != nil {
				continue
			}
			obs = loaded
		}
		matchType := MatchTypeHybrid
		switch {
		case f.inFTS && !f.inVector:
			matchType = MatchTypeFTS
		case f.inVector && !f.inFTS:
			matchType = MatchTypeVector
		}
		results = append(results, Result{
			Observation: obs,
			Score:       f.score,
			MatchType:   matchType,
			Snippet:     snippet(obs.Content, 240),
		})
	}
	return results, nil
}

// snippet truncates text to maxLen runes for display, appending an
// ellipsis marker when truncated.
func snippet(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "…"
}
