package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/laminark/laminark/internal/graph"
	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// staleNodeAgeDays flags nodes untouched this long as potentially stale.
// Kept independent of the curation pass's own decay thresholds: staleness
// here is informational, not a deletion trigger.
const staleNodeAgeDays = 30

func handleGraphStats(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodes, err := h.Store.ListNodes(ctx, store.NodeFilter{ProjectHash: h.ProjectHash, Limit: 10000})
		if err != nil {
			return mcp.NewToolResultError("failed to list nodes: " + err.Error()), nil
		}

		typeCounts := map[store.NodeType]int{}
		degrees := map[string]int{}
		totalEdges := 0
		maxDegree := 0
		var hotspots []*store.GraphNode
		now := time.Now().UTC()
		var stale []*store.GraphNode

		for _, n := range nodes {
			typeCounts[n.Type]++
			degree, err := h.Store.NodeDegree(ctx, n.ID)
			if err != nil {
				continue
			}
			degrees[n.ID] = degree
			totalEdges += degree
			if degree > maxDegree {
				maxDegree = degree
			}
			if now.Sub(n.UpdatedAt).Hours()/24 > staleNodeAgeDays {
				stale = append(stale, n)
			}
		}

		sort.SliceStable(nodes, func(i, j int) bool { return degrees[nodes[i].ID] > degrees[nodes[j].ID] })
		for i := 0; i < len(nodes) && i < 5; i++ {
			if degrees[nodes[i].ID] > 0 {
				hotspots = append(hotspots, nodes[i])
			}
		}

		avgDegree := 0.0
		if len(nodes) > 0 {
			avgDegree = float64(totalEdges) / float64(len(nodes))
		}

		duplicates := graph.MergeDuplicates(nodes)
		nodesByID := make(map[string]*store.GraphNode, len(nodes))
		for _, n := range nodes {
			nodesByID[n.ID] = n
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Nodes: %s, Edges: %s\n\n", humanize.Comma(int64(len(nodes))), humanize.Comma(int64(totalEdges)))
		b.WriteString("By type:\n")
		for _, t := range []store.NodeType{
			store.NodeTypeFile, store.NodeTypeTool, store.NodeTypeProject,
			store.NodeTypeDecision, store.NodeTypeProblem, store.NodeTypeSolution, store.NodeTypeReference,
		} {
			if c := typeCounts[t]; c > 0 {
				fmt.Fprintf(&b, "  %s: %d\n", t, c)
			}
		}
		fmt.Fprintf(&b, "\nAverage degree: %.2f, max degree: %d\n", avgDegree, maxDegree)

		if len(hotspots) > 0 {
			b.WriteString("\nHotspots:\n")
			for _, n := range hotspots {
				fmt.Fprintf(&b, "  %s [%s] — degree %d\n", n.Name, n.Type, degrees[n.ID])
			}
		}

		if len(duplicates) > 0 {
			b.WriteString("\nDuplicate candidates:\n")
			for dupID, canonicalID := range duplicates {
				dup, okDup := nodesByID[dupID]
				canon, okCanon := nodesByID[canonicalID]
				if okDup && okCanon {
					fmt.Fprintf(&b, "  %q may duplicate %q (%s)\n", dup.Name, canon.Name, dup.Type)
				}
			}
		}

		if len(stale) > 0 {
			b.WriteString("\nStale:\n")
			for _, n := range stale {
				fmt.Fprintf(&b, "  %s [%s] — last touched %s\n", n.Name, n.Type, humanize.Time(n.UpdatedAt))
			}
		}

		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, b.String())), nil
	}
}
