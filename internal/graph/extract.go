// Package graph builds and curates the typed knowledge graph from embedded
// observations: entity extraction, relationship inference, degree-capped
// persistence, and periodic decay/dedup.
package graph

import (
	"regexp"
	"strings"

	"github.com/laminark/laminark/internal/store"
)

// Candidate is one extracted entity mention before persistence.
type Candidate struct {
	Name       string
	Type       store.NodeType
	Confidence float64
}

// baselineConfidence mirrors spec.md §4.6's table exactly.
var baselineConfidence = map[store.NodeType]float64{
	store.NodeTypeFile:      0.95,
	store.NodeTypeTool:      0.90,
	store.NodeTypeProject:   0.80,
	store.NodeTypeDecision:  0.70,
	store.NodeTypeProblem:   0.65,
	store.NodeTypeSolution:  0.65,
	store.NodeTypeReference: 0.60,
}

// QualityGate holds the configurable thresholds entity extraction filters
// candidates through: a per-type confidence floor and the per-observation
// File-node cap.
type QualityGate struct {
	MinConfidenceByType map[store.NodeType]float64
	MaxFileNodes        int
}

// DefaultQualityGate matches spec.md §4.6's defaults.
func DefaultQualityGate() QualityGate {
	return QualityGate{MaxFileNodes: 5}
}

var (
	filePathPattern = regexp.MustCompile(`\b[\w./-]+\.(go|py|js|ts|tsx|jsx|java|rb|rs|c|cpp|h|hpp|md|json|yaml|yml|sql|sh)\b`)
	toolNamePattern = regexp.MustCompile(`\b(Write|Edit|MultiEdit|Read|Bash|Glob|Grep|WebFetch|WebSearch|Task)\b`)
	decisionPattern = regexp.MustCompile(`(?i)\b(decided|chose|instead of|went with|opted for)\b[^.\n]{3,120}`)
	problemPattern  = regexp.MustCompile(`(?i)\b(error|bug|issue|problem|fails?|broken|crash(?:es|ed)?)\b[^.\n]{3,120}`)
	solutionPattern = regexp.MustCompile(`(?i)\b(fix(?:ed)?|resolved|solved|workaround)\b[^.\n]{3,120}`)
	referencePattern = regexp.MustCompile(`\bhttps?://[^\s)]+`)
)

// ExtractCandidates runs the rule battery described in spec.md §4.6 over an
// observation's text and returns surviving candidates after the quality
// gate and same-type overlap resolution. isChangeObservation indicates
// whether the source tool actually modified a file (Write/Edit), used for
// the File-path confidence multiplier.
func ExtractCandidates(title, content string, isChangeObservation bool, gate QualityGate) []Candidate {
	text := title + "\n" + content
	var raw []Candidate

	for _, m := range filePathPattern.FindAllString(text, -1) {
		conf := baselineConfidence[store.NodeTypeFile]
		if !isChangeObservation {
			conf *= 0.74
		}
		raw = append(raw, Candidate{Name: m, Type: store.NodeTypeFile, Confidence: conf})
	}
	for _, m := range toolNamePattern.FindAllString(text, -1) {
		raw = append(raw, Candidate{Name: m, Type: store.NodeTypeTool, Confidence: baselineConfidence[store.NodeTypeTool]})
	}
	for _, m := range decisionPattern.FindAllString(text, -1) {
		raw = append(raw, Candidate{Name: clean(m), Type: store.NodeTypeDecision, Confidence: baselineConfidence[store.NodeTypeDecision]})
	}
	for _, m := range problemPattern.FindAllString(text, -1) {
		raw = append(raw, Candidate{Name: clean(m), Type: store.NodeTypeProblem, Confidence: baselineConfidence[store.NodeTypeProblem]})
	}
	for _, m := range solutionPattern.FindAllString(text, -1) {
		raw = append(raw, Candidate{Name: clean(m), Type: store.NodeTypeSolution, Confidence: baselineConfidence[store.NodeTypeSolution]})
	}
	for _, m := range referencePattern.FindAllString(text, -1) {
		raw = append(raw, Candidate{Name: m, Type: store.NodeTypeReference, Confidence: baselineConfidence[store.NodeTypeReference]})
	}

	return applyFilters(raw, gate)
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// applyFilters runs the quality gate (length, per-type min confidence,
// file-node cap) then same-type overlap resolution (spec.md §4.6).
func applyFilters(raw []Candidate, gate QualityGate) []Candidate {
	filtered := make([]Candidate, 0, len(raw))
	fileCount := 0
	for _, c := range raw {
		if len(c.Name) < 3 || len(c.Name) > 200 {
			continue
		}
		if floor, ok := gate.MinConfidenceByType[c.Type]; ok && c.Confidence < floor {
			continue
		}
		if c.Type == store.NodeTypeFile {
			maxFiles := gate.MaxFileNodes
			if maxFiles <= 0 {
				maxFiles = 5
			}
			if fileCount >= maxFiles {
				continue
			}
			fileCount++
		}
		filtered = append(filtered, c)
	}

	// Same-type overlap resolution: spans with the same (name, type) keep
	// only the highest-confidence entity.
	best := map[string]Candidate{}
	var order []string
	for _, c := range filtered {
		key := string(c.Type) + "\x00" + strings.ToLower(c.Name)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.Confidence > existing.Confidence {
			best[key] = c
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}
