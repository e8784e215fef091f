package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func handleTopicContext(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := intArg(req, "limit", 10)
		if limit <= 0 {
			limit = 10
		}

		stashes, err := h.Store.ListStashes(ctx, h.ProjectHash, false)
		if err != nil {
			return mcp.NewToolResultError("failed to list stashes: " + err.Error()), nil
		}
		if len(stashes) == 0 {
			return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, "No stashed contexts.")), nil
		}
		if len(stashes) > limit {
			stashes = stashes[:limit]
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d stashed context(s), most recent first:\n\n", len(stashes))
		for _, st := range stashes {
			fmt.Fprintf(&b, "- %s — %q\n  %s\n  created %s, resume with recall action=view or stash id %s\n",
				st.ID, st.TopicLabel, st.Summary, st.CreatedAt.Format("2006-01-02 15:04"), st.ID)
		}
		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, b.String())), nil
	}
}
