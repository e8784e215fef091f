package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/laminark/laminark/internal/store"
)

// Store is the subset of *store.Store the pipeline writes through.
type Store interface {
	UpsertNode(ctx context.Context, n *store.GraphNode, observationID string) (*store.GraphNode, error)
	CreateEdge(ctx context.Context, e *store.GraphEdge, maxDegree int) (*store.GraphEdge, error)
}

// SignalLevel classifies an observation for graph treatment
// (spec.md §4.6's signal gate).
type SignalLevel int

const (
	SignalSkip SignalLevel = iota
	SignalMedium
	SignalHigh
)

// navigationSources are pure-navigation tool sources that never enter the
// graph: they carry no durable entity or relationship signal.
var navigationSources = map[string]bool{
	"hook:Read": true,
	"hook:Glob": true,
	"hook:Grep": true,
}

// Classify buckets an observation by source into {skip, medium, high}.
func Classify(source string) SignalLevel {
	if navigationSources[source] {
		return SignalSkip
	}
	if strings.HasPrefix(source, "hook:Write") || strings.HasPrefix(source, "hook:Edit") || strings.HasPrefix(source, "hook:MultiEdit") {
		return SignalHigh
	}
	return SignalMedium
}

// Pipeline builds the typed knowledge graph from embedded observations
// (spec.md §4.6). It runs after embedding and before the next observation
// enters the pipeline.
type Pipeline struct {
	store           Store
	gate            QualityGate
	minEdgeConfidence float64
	maxDegree       int
}

// Config bundles the pipeline's tunables.
type Config struct {
	Gate              QualityGate
	MinEdgeConfidence float64
	MaxDegree         int
}

// New constructs a Pipeline.
func New(st Store, cfg Config) *Pipeline {
	if cfg.MaxDegree <= 0 {
		cfg.MaxDegree = 50
	}
	if cfg.MinEdgeConfidence <= 0 {
		cfg.MinEdgeConfidence = 0.45
	}
	if cfg.Gate.MaxFileNodes <= 0 {
		cfg.Gate.MaxFileNodes = 5
	}
	return &Pipeline{store: st, gate: cfg.Gate, minEdgeConfidence: cfg.MinEdgeConfidence, maxDegree: cfg.MaxDegree}
}

// Process runs one observation through extraction, persistence, and (for
// high-signal observations) relationship inference and edge persistence.
func (p *Pipeline) Process(ctx context.Context, projectHash string, obs *store.Observation) error {
	level := Classify(obs.Source)
	if level == SignalSkip {
		return nil
	}

	isChange := strings.HasPrefix(obs.Source, "hook:Write") || strings.HasPrefix(obs.Source, "hook:Edit") || strings.HasPrefix(obs.Source, "hook:MultiEdit")
	candidates := ExtractCandidates(obs.Title, obs.Content, isChange, p.gate)
	if len(candidates) == 0 {
		return nil
	}

	nodesByKey := make(map[string]*store.GraphNode, len(candidates))
	for _, c := range candidates {
		n, err := p.store.UpsertNode(ctx, &store.GraphNode{
			ProjectHash: projectHash,
			Name:        c.Name,
			Type:        c.Type,
			Metadata:    map[string]any{"confidence": c.Confidence},
		}, obs.ID)
		if err != nil {
			return fmt.Errorf("graph: upsert node %q: %w", c.Name, err)
		}
		nodesByKey[string(c.Type)+"\x00"+strings.ToLower(c.Name)] = n
	}

	if level != SignalHigh {
		return nil
	}

	relations := InferRelations(candidates, p.minEdgeConfidence)
	for _, rel := range relations {
		sourceNode := nodesByKey[string(rel.Source.Type)+"\x00"+strings.ToLower(rel.Source.Name)]
		targetNode := nodesByKey[string(rel.Target.Type)+"\x00"+strings.ToLower(rel.Target.Name)]
		if sourceNode == nil || targetNode == nil {
			continue
		}
		if _, err := p.store.CreateEdge(ctx, &store.GraphEdge{
			ProjectHash: projectHash,
			SourceID:    sourceNode.ID,
			TargetID:    targetNode.ID,
			Type:        rel.Type,
			Weight:      rel.Confidence,
		}, p.maxDegree); err != nil {
			return fmt.Errorf("graph: create edge %s->%s: %w", sourceNode.Name, targetNode.Name, err)
		}
	}
	return nil
}
