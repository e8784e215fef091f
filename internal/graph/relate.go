package graph

import "github.com/laminark/laminark/internal/store"

// RelationCandidate is an inferred edge before the confidence threshold
// and degree cap are applied.
type RelationCandidate struct {
	Source     Candidate
	Target     Candidate
	Type       store.EdgeType
	Confidence float64
}

// typePairRules maps an (source type, target type) pair to the edge type
// and base confidence inferred when both entities co-occur in the same
// observation. This is a small, explicit rule table rather than a learned
// classifier, matching spec.md §4.6's framing that the contract is the
// tuple shape, not the inference method.
var typePairRules = map[[2]store.NodeType]struct {
	edge       store.EdgeType
	confidence float64
}{
	{store.NodeTypeTool, store.NodeTypeFile}:         {store.EdgeTypeUses, 0.8},
	{store.NodeTypeFile, store.NodeTypeFile}:         {store.EdgeTypeDependsOn, 0.5},
	{store.NodeTypeDecision, store.NodeTypeFile}:     {store.EdgeTypeDecidedBy, 0.6},
	{store.NodeTypeProblem, store.NodeTypeSolution}:  {store.EdgeTypeSolvedBy, 0.75},
	{store.NodeTypeProblem, store.NodeTypeFile}:      {store.EdgeTypeCausedBy, 0.55},
	{store.NodeTypeFile, store.NodeTypeProject}:      {store.EdgeTypePartOf, 0.65},
	{store.NodeTypeReference, store.NodeTypeProblem}: {store.EdgeTypeRelatedTo, 0.5},
	{store.NodeTypeReference, store.NodeTypeSolution}: {store.EdgeTypeRelatedTo, 0.5},
}

// InferRelations proposes an edge for every pair of surviving candidates
// from the same observation that matches a known type-pair rule, discarding
// anything below minConfidence (default 0.45, spec.md §4.6).
func InferRelations(candidates []Candidate, minConfidence float64) []RelationCandidate {
	if minConfidence <= 0 {
		minConfidence = 0.45
	}
	var out []RelationCandidate
	for i := range candidates {
		for j := range candidates {
			if i == j {
				continue
			}
			rule, ok := typePairRules[[2]store.NodeType{candidates[i].Type, candidates[j].Type}]
			if !ok {
				continue
			}
			confidence := rule.confidence * ((candidates[i].Confidence + candidates[j].Confidence) / 2)
			if confidence < minConfidence {
				continue
			}
			out = append(out, RelationCandidate{
				Source:     candidates[i],
				Target:     candidates[j],
				Type:       rule.edge,
				Confidence: confidence,
			})
		}
	}
	return out
}
