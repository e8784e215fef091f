package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func handleSaveMemory(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, _ := req.GetArguments()["content"].(string)
		title, _ := req.GetArguments()["title"].(string)

		if strings.TrimSpace(content) == "" {
			return mcp.NewToolResultError("content is required"), nil
		}
		if title == "" {
			title = deriveTitle(content)
		}

		obs, err := h.Store.CreateObservation(ctx, &store.Observation{
			ProjectHash: h.ProjectHash,
			Title:       title,
			Content:     content,
			Source:      "mcp:save_memory",
			Kind:        store.ObservationKindReference,
		})
		if err != nil {
			return mcp.NewToolResultError("failed to save: " + err.Error()), nil
		}

		body := fmt.Sprintf("Saved observation %s: %q", obs.ID, obs.Title)
		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, body)), nil
	}
}

// deriveTitle takes the first line (or first 80 characters) of content as
// an auto-derived title when the caller didn't supply one.
func deriveTitle(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[:idx]
	}
	content = strings.TrimSpace(content)
	if len(content) > 80 {
		content = content[:80]
	}
	return content
}
