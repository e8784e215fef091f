package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/laminark/laminark/internal/graph"
	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const maxGraphExcerpts = 10

func handleQueryGraph(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, _ := req.GetArguments()["query"].(string)
		entityType, _ := req.GetArguments()["entityType"].(string)
		edgeTypesRaw, _ := req.GetArguments()["edgeTypes"].(string)
		depth := intArg(req, "depth", 1)
		if depth < 1 {
			depth = 1
		}
		if depth > 4 {
			depth = 4
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		var edgeFilter map[store.EdgeType]bool
		if edgeTypesRaw != "" {
			edgeFilter = map[store.EdgeType]bool{}
			for _, t := range strings.Split(edgeTypesRaw, ",") {
				edgeFilter[store.EdgeType(strings.TrimSpace(t))] = true
			}
		}

		nodes, err := h.Store.ListNodes(ctx, store.NodeFilter{ProjectHash: h.ProjectHash, Type: store.NodeType(entityType), Limit: 5000})
		if err != nil {
			return mcp.NewToolResultError("graph lookup failed: " + err.Error()), nil
		}

		matches := matchEntities(nodes, query)
		if len(matches) == 0 {
			return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, fmt.Sprintf("No entities found matching %q", query))), nil
		}

		nodesByID := make(map[string]*store.GraphNode, len(nodes))
		for _, n := range nodes {
			nodesByID[n.ID] = n
		}

		visited := map[string]bool{}
		var b strings.Builder
		fmt.Fprintf(&b, "Entities matching %q:\n\n", query)
		excerpts := 0
		for _, n := range matches {
			fmt.Fprintf(&b, "%s [%s]\n", n.Name, n.Type)
			traverseGraph(ctx, h, n.ID, depth, edgeFilter, nodesByID, visited, &b, 1, &excerpts)
		}
		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, b.String())), nil
	}
}

// matchEntities resolves exact (case-insensitive) name matches first; if
// none exist, falls back to fuzzy matching via the same
// Levenshtein/Jaccard heuristics the graph's curation pass uses for
// duplicate detection.
func matchEntities(nodes []*store.GraphNode, query string) []*store.GraphNode {
	var exact []*store.GraphNode
	lowerQuery := strings.ToLower(query)
	for _, n := range nodes {
		if strings.ToLower(n.Name) == lowerQuery {
			exact = append(exact, n)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	type scored struct {
		node  *store.GraphNode
		score float64
	}
	var fuzzy []scored
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Name), lowerQuery) {
			fuzzy = append(fuzzy, scored{n, 1})
			continue
		}
		if graph.LevenshteinDistance(strings.ToLower(n.Name), lowerQuery) <= 2 || graph.JaccardSimilarity(n.Name, query) >= 0.5 {
			fuzzy = append(fuzzy, scored{n, graph.JaccardSimilarity(n.Name, query)})
		}
	}
	sort.SliceStable(fuzzy, func(i, j int) bool { return fuzzy[i].score > fuzzy[j].score })
	out := make([]*store.GraphNode, 0, len(fuzzy))
	for _, s := range fuzzy {
		out = append(out, s.node)
	}
	return out
}

func traverseGraph(ctx context.Context, h *Handlers, nodeID string, depth int, edgeFilter map[store.EdgeType]bool, nodesByID map[string]*store.GraphNode, visited map[string]bool, b *strings.Builder, level int, excerpts *int) {
	if visited[nodeID] || level > depth {
		return
	}
	visited[nodeID] = true

	edges, err := h.Store.ListEdges(ctx, nodeID)
	if err != nil {
		return
	}
	indent := strings.Repeat("  ", level)
	for _, e := range edges {
		if edgeFilter != nil && !edgeFilter[e.Type] {
			continue
		}
		targetName := e.TargetID
		if target, ok := nodesByID[e.TargetID]; ok {
			targetName = fmt.Sprintf("%s [%s]", target.Name, target.Type)
		}
		fmt.Fprintf(b, "%s-%s-> %s (weight %.2f)\n", indent, e.Type, targetName, e.Weight)
		if *excerpts < maxGraphExcerpts {
			if obs, err := h.Store.NodeObservations(ctx, e.TargetID, 1); err == nil && len(obs) > 0 {
				fmt.Fprintf(b, "%s  %s\n", indent, snippetOf(obs[0].Content, 200))
				*excerpts++
			}
		}
		traverseGraph(ctx, h, e.TargetID, depth, edgeFilter, nodesByID, visited, b, level+1, excerpts)
	}
}
