package graph

import (
	"testing"

	"github.com/laminark/laminark/internal/store"
)

func TestExtractCandidatesFindsFileAndTool(t *testing.T) {
	candidates := ExtractCandidates("Edit main.go", "ran Edit on main.go to fix the handler", true, DefaultQualityGate())
	var sawFile, sawTool bool
	for _, c := range candidates {
		if c.Type == store.NodeTypeFile && c.Name == "main.go" {
			sawFile = true
		}
		if c.Type == store.NodeTypeTool && c.Name == "Edit" {
			sawTool = true
		}
	}
	if !sawFile {
		t.Error("expected a File candidate for main.go")
	}
	if !sawTool {
		t.Error("expected a Tool candidate for Edit")
	}
}

func TestExtractCandidatesAppliesNonChangeFileMultiplier(t *testing.T) {
	changed := ExtractCandidates("", "discussed auth.go briefly", true, DefaultQualityGate())
	unchanged := ExtractCandidates("", "discussed auth.go briefly", false, DefaultQualityGate())
	if len(changed) == 0 || len(unchanged) == 0 {
		t.Fatal("expected both to extract the file candidate")
	}
	if !(unchanged[0].Confidence < changed[0].Confidence) {
		t.Errorf("expected non-change observation to have lower file confidence: changed=%v unchanged=%v", changed[0].Confidence, unchanged[0].Confidence)
	}
}

func TestExtractCandidatesCapsFileNodes(t *testing.T) {
	content := "a.go b.go c.go d.go e.go f.go g.go"
	gate := DefaultQualityGate()
	candidates := ExtractCandidates("", content, true, gate)
	fileCount := 0
	for _, c := range candidates {
		if c.Type == store.NodeTypeFile {
			fileCount++
		}
	}
	if fileCount > gate.MaxFileNodes {
		t.Errorf("expected at most %d file nodes, got %d", gate.MaxFileNodes, fileCount)
	}
}

func TestExtractCandidatesKeepsHighestConfidenceOnOverlap(t *testing.T) {
	content := "main.go main.go main.go"
	candidates := ExtractCandidates("", content, true, DefaultQualityGate())
	count := 0
	for _, c := range candidates {
		if c.Type == store.NodeTypeFile && c.Name == "main.go" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected same-type overlap resolved to one candidate, got %d", count)
	}
}

func TestInferRelationsDiscardsBelowThreshold(t *testing.T) {
	candidates := []Candidate{
		{Name: "main.go", Type: store.NodeTypeFile, Confidence: 0.2},
		{Name: "Edit", Type: store.NodeTypeTool, Confidence: 0.2},
	}
	relations := InferRelations(candidates, 0.9)
	if len(relations) != 0 {
		t.Errorf("expected low-confidence relation to be discarded, got %d", len(relations))
	}
}

func TestInferRelationsProducesToolUsesFile(t *testing.T) {
	candidates := []Candidate{
		{Name: "main.go", Type: store.NodeTypeFile, Confidence: 0.95},
		{Name: "Edit", Type: store.NodeTypeTool, Confidence: 0.9},
	}
	relations := InferRelations(candidates, 0.45)
	found := false
	for _, r := range relations {
		if r.Type == store.EdgeTypeUses && r.Source.Type == store.NodeTypeTool && r.Target.Type == store.NodeTypeFile {
			found = true
		}
	}
	if !found {
		t.Error("expected a uses edge from Tool to File")
	}
}
