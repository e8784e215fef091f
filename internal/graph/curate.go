package graph

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/laminark/laminark/internal/store"
)

const (
	defaultHalfLifeDays      = 30
	defaultDecayFloor        = 0.05
	defaultDeleteThreshold   = 0.08
	defaultMaxAgeDays        = 180
)

// CurationStore is the subset of *store.Store curation writes through.
type CurationStore interface {
	ListNodes(ctx context.Context, filter store.NodeFilter) ([]*store.GraphNode, error)
	ListEdges(ctx context.Context, sourceID string) ([]*store.GraphEdge, error)
	UpdateEdgeWeight(ctx context.Context, id string, weight float64) error
	DeleteEdge(ctx context.Context, id string) error
	DeleteNode(ctx context.Context, id string) error
	NodeDegree(ctx context.Context, nodeID string) (int, error)
}

// DecayConfig tunes the temporal decay pass.
type DecayConfig struct {
	HalfLifeDays    float64
	DecayFloor      float64
	DeleteThreshold float64
	MaxAgeDays      float64
}

func (c DecayConfig) withDefaults() DecayConfig {
	if c.HalfLifeDays <= 0 {
		c.HalfLifeDays = defaultHalfLifeDays
	}
	if c.DecayFloor <= 0 {
		c.DecayFloor = defaultDecayFloor
	}
	if c.DeleteThreshold <= 0 {
		c.DeleteThreshold = defaultDeleteThreshold
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = defaultMaxAgeDays
	}
	return c
}

// DecayEdges multiplies every edge's weight by
// exp(-ln2 * ageDays / halfLifeDays), deletes edges that fall below
// DeleteThreshold or exceed MaxAgeDays, and floors surviving weights at
// DecayFloor (spec.md §4.6's temporal decay pass). now is passed in since
// time.Now is unavailable to callers that must stay deterministic in
// tests.
func DecayEdges(ctx context.Context, st CurationStore, projectHash string, cfg DecayConfig, now time.Time) error {
	cfg = cfg.withDefaults()

	nodes, err := st.ListNodes(ctx, store.NodeFilter{ProjectHash: projectHash, Limit: 10000})
	if err != nil {
		return fmt.Errorf("curate: list nodes: %w", err)
	}

	for _, n := range nodes {
		edges, err := st.ListEdges(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("curate: list edges for %s: %w", n.ID, err)
		}
		for _, e := range edges {
			ageDays := now.Sub(e.CreatedAt).Hours() / 24
			if ageDays > cfg.MaxAgeDays {
				if err := st.DeleteEdge(ctx, e.ID); err != nil {
					return fmt.Errorf("curate: delete aged edge %s: %w", e.ID, err)
				}
				continue
			}
			decayed := e.Weight * math.Exp(-math.Ln2*ageDays/cfg.HalfLifeDays)
			if decayed < cfg.DeleteThreshold {
				if err := st.DeleteEdge(ctx, e.ID); err != nil {
					return fmt.Errorf("curate: delete decayed edge %s: %w", e.ID, err)
				}
				continue
			}
			if decayed < cfg.DecayFloor {
				decayed = cfg.DecayFloor
			}
			if err := st.UpdateEdgeWeight(ctx, e.ID, decayed); err != nil {
				return fmt.Errorf("curate: update edge weight %s: %w", e.ID, err)
			}
		}
	}
	return nil
}

// PruneOrphans deletes nodes with zero outgoing and (by construction,
// since edges are the only cross-reference) zero relationships, older
// than afterDays since their last update. Hygiene tiers configure how
// aggressively this runs; the caller decides the schedule.
func PruneOrphans(ctx context.Context, st CurationStore, projectHash string, afterDays float64, now time.Time) (int, error) {
	nodes, err := st.ListNodes(ctx, store.NodeFilter{ProjectHash: projectHash, Limit: 10000})
	if err != nil {
		return 0, fmt.Errorf("curate: list nodes: %w", err)
	}
	pruned := 0
	for _, n := range nodes {
		ageDays := now.Sub(n.UpdatedAt).Hours() / 24
		if ageDays < afterDays {
			continue
		}
		degree, err := st.NodeDegree(ctx, n.ID)
		if err != nil {
			return pruned, fmt.Errorf("curate: node degree %s: %w", n.ID, err)
		}
		if degree > 0 {
			continue
		}
		if err := st.DeleteNode(ctx, n.ID); err != nil {
			return pruned, fmt.Errorf("curate: delete orphan %s: %w", n.ID, err)
		}
		pruned++
	}
	return pruned, nil
}

// MergeDuplicates merges nodes sharing a name within Levenshtein distance 2
// or token-Jaccard similarity >= 0.7 and a compatible type, per spec.md
// §4.6's curation duties. It reports the number of nodes merged away.
// This implementation compares within each type bucket only — nodes of
// genuinely different types are never merged regardless of name similarity.
func MergeDuplicates(nodes []*store.GraphNode) (merges map[string]string) {
	merges = map[string]string{}
	byType := map[store.NodeType][]*store.GraphNode{}
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}
	for _, group := range byType {
		for i := 0; i < len(group); i++ {
			if _, already := merges[group[i].ID]; already {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if _, already := merges[group[j].ID]; already {
					continue
				}
				if levenshtein(group[i].Name, group[j].Name) <= 2 || jaccard(group[i].Name, group[j].Name) >= 0.7 {
					merges[group[j].ID] = group[i].ID
				}
			}
		}
	}
	return merges
}

// LevenshteinDistance exposes the same near-duplicate-name heuristic
// MergeDuplicates uses, for callers like query_graph's fuzzy entity lookup.
func LevenshteinDistance(a, b string) int { return levenshtein(a, b) }

// JaccardSimilarity exposes the same token-overlap heuristic
// MergeDuplicates uses, for callers like query_graph's fuzzy entity lookup.
func JaccardSimilarity(a, b string) float64 { return jaccard(a, b) }

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur := make([]int, len(rb)+1)
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}
