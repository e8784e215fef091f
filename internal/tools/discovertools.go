package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const discoverToolsTokenBudget = 2000

func handleDiscoverTools(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, _ := req.GetArguments()["query"].(string)
		scope, _ := req.GetArguments()["scope"].(string)
		limit := intArg(req, "limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		entries, err := h.Store.ListToolRegistry(ctx, h.ProjectHash)
		if err != nil {
			return mcp.NewToolResultError("failed to list tool registry: " + err.Error()), nil
		}

		lowerQuery := strings.ToLower(query)
		type scored struct {
			entry *store.ToolRegistryEntry
			score int
		}
		var matched []scored
		suppressed := map[string]bool{}
		for _, e := range entries {
			if e.Type == store.ToolTypeMCPServer {
				suppressed[e.ServerName] = true
			}
		}
		for _, e := range entries {
			if scope != "" && string(e.Scope) != scope {
				continue
			}
			if e.Type == store.ToolTypeMCPTool && suppressed[e.ServerName] {
				continue
			}
			haystack := strings.ToLower(e.Name + " " + e.Description)
			score := 0
			for _, word := range strings.Fields(lowerQuery) {
				if strings.Contains(haystack, word) {
					score++
				}
			}
			if score > 0 {
				matched = append(matched, scored{e, score})
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			if matched[i].score != matched[j].score {
				return matched[i].score > matched[j].score
			}
			return matched[i].entry.UsageCount > matched[j].entry.UsageCount
		})
		if len(matched) > limit {
			matched = matched[:limit]
		}
		if len(matched) == 0 {
			return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, fmt.Sprintf("No tools found matching %q", query))), nil
		}

		items := make([]string, 0, len(matched))
		for _, m := range matched {
			items = append(items, fmt.Sprintf("- %s (%s, %s): %s", m.entry.Name, m.entry.Type, m.entry.Scope, m.entry.Description))
		}
		items, dropped := truncateItemsToTokenBudget(items, discoverToolsTokenBudget)

		var b strings.Builder
		fmt.Fprintf(&b, "Tools matching %q:\n", query)
		b.WriteString(strings.Join(items, "\n"))
		if dropped {
			b.WriteString("\n(additional results omitted to fit the response budget)")
		}
		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, b.String())), nil
	}
}
