package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/laminark/laminark/internal/search"
	"github.com/laminark/laminark/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	recallListTokenBudget = 2000
	recallFullTokenBudget = 4000
)

func handleRecall(h *Handlers) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, _ := req.GetArguments()["action"].(string)
		query, _ := req.GetArguments()["query"].(string)
		id, _ := req.GetArguments()["id"].(string)
		detail, _ := req.GetArguments()["detail"].(string)
		includePurged, _ := req.GetArguments()["include_purged"].(bool)
		limit := intArg(req, "limit", 10)
		if detail == "" {
			detail = "compact"
		}

		var body string
		var err error
		switch action {
		case "search":
			body, err = recallSearch(ctx, h, query, limit, includePurged)
		case "view":
			body, err = recallView(ctx, h, id, detail)
		case "purge":
			body, err = recallPurge(ctx, h, id)
		case "restore":
			body, err = recallRestore(ctx, h, id)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q: expected search, view, purge, or restore", action)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(prependNotifications(ctx, h.Store, h.ProjectHash, body)), nil
	}
}

func recallSearch(ctx context.Context, h *Handlers, query string, limit int, includePurged bool) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required for action=search")
	}
	if limit <= 0 {
		limit = 10
	}
	results, err := search.HybridSearch(ctx, h.Store, h.Embedder, h.ProjectHash, query, limit)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No observations found for %q", query), nil
	}

	items := make([]string, 0, len(results))
	for _, r := range results {
		items = append(items, fmt.Sprintf("[%s] %s (%s, score %.3f)\n  %s",
			r.Observation.ID, r.Observation.Title, r.MatchType, r.Score, r.Snippet))
	}

	if includePurged {
		// HybridSearch only sees visible rows; purged matches are found by a
		// plain substring scan over soft-deleted observations, since FTS5
		// doesn't index them.
		deleted, err := h.Store.ListObservations(ctx, store.ObservationFilter{
			ProjectHash:    h.ProjectHash,
			IncludeDeleted: true,
			Limit:          200,
		})
		if err == nil {
			lowerQuery := strings.ToLower(query)
			for _, o := range deleted {
				if o.Visible() {
					continue
				}
				if strings.Contains(strings.ToLower(o.Title+o.Content), lowerQuery) {
					items = append(items, fmt.Sprintf("[%s] %s (purged)\n  %s", o.ID, o.Title, snippetOf(o.Content, 200)))
				}
			}
		}
	}

	items, dropped := truncateItemsToTokenBudget(items, recallListTokenBudget)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d observations:\n\n", len(items))
	b.WriteString(strings.Join(items, "\n\n"))
	if dropped {
		b.WriteString("\n\n(additional results omitted to fit the response budget)")
	}
	return b.String(), nil
}

func recallView(ctx context.Context, h *Handlers, id, detail string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id is required for action=view")
	}
	obs, err := h.Store.GetObservationIncludingDeleted(ctx, id)
	if err != nil {
		return "", fmt.Errorf("observation %s not found: %w", id, err)
	}

	switch detail {
	case "full":
		body := fmt.Sprintf("[%s] %s\nSource: %s\nCreated: %s\n\n%s",
			obs.ID, obs.Title, obs.Source, obs.CreatedAt.Format("2006-01-02 15:04:05"), obs.Content)
		if estimateTokens(body) > recallFullTokenBudget {
			maxChars := recallFullTokenBudget * 4
			if maxChars < len(body) {
				body = body[:maxChars] + "\n(truncated to fit the response budget)"
			}
		}
		return body, nil
	case "timeline":
		return recallTimeline(ctx, h, obs)
	default:
		return fmt.Sprintf("[%s] %s (%s)\n  %s", obs.ID, obs.Title, obs.Source, snippetOf(obs.Content, 200)), nil
	}
}

func recallTimeline(ctx context.Context, h *Handlers, focus *store.Observation) (string, error) {
	around, err := h.Store.ListObservations(ctx, store.ObservationFilter{
		ProjectHash: focus.ProjectHash,
		SessionID:   focus.SessionID,
		Limit:       20,
	})
	if err != nil {
		return "", fmt.Errorf("timeline lookup failed: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Timeline around %s in session %s:\n\n", focus.ID, focus.SessionID)
	for _, o := range around {
		marker := "  "
		if o.ID == focus.ID {
			marker = ">>"
		}
		fmt.Fprintf(&b, "%s [%s] %s\n", marker, o.CreatedAt.Format("15:04:05"), o.Title)
	}
	return b.String(), nil
}

func recallPurge(ctx context.Context, h *Handlers, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id is required for action=purge")
	}
	if err := h.Store.SoftDelete(ctx, id); err != nil {
		return "", fmt.Errorf("purge failed: %w", err)
	}
	return fmt.Sprintf("Observation %s purged (soft-deleted); use action=restore to undo", id), nil
}

func recallRestore(ctx context.Context, h *Handlers, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("id is required for action=restore")
	}
	if err := h.Store.Restore(ctx, id); err != nil {
		return "", fmt.Errorf("restore failed: %w", err)
	}
	return fmt.Sprintf("Observation %s restored", id), nil
}

func snippetOf(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
