package tools

import (
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverInstructions = `Laminark provides persistent, project-scoped memory across sessions and ` +
	`context resets. Use save_memory after significant decisions or discoveries; ` +
	`use recall to search or browse past observations; use topic_context to see ` +
	`what was stashed when the conversation last changed topic; use query_graph ` +
	`to explore how files, tools, problems, and decisions relate to each other; ` +
	`use graph_stats for a health overview; use discover_tools to find a tool by ` +
	`what it does rather than its exact name.`

// Handlers bundles the dependencies every tool handler needs.
type Handlers struct {
	Store       Store
	Embedder    Embedder
	ProjectHash string
	Logger      *log.Logger
}

// NewServer builds the MCP stdio server exposing Laminark's six tools
// (spec.md §4.8).
func NewServer(h *Handlers) *server.MCPServer {
	srv := server.NewMCPServer(
		"laminark",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	srv.AddTool(
		mcp.NewTool("save_memory",
			mcp.WithDescription("Persist a manual observation to memory. Call this after a decision, fix, or discovery worth remembering across sessions."),
			mcp.WithTitleAnnotation("Save Memory"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithString("content", mcp.Required(), mcp.Description("The observation's body text")),
			mcp.WithString("title", mcp.Description("Short title; auto-derived from content if omitted")),
		),
		handleSaveMemory(h),
	)

	srv.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Unified read over memory: search, view a specific observation, purge (soft-delete), or restore."),
			mcp.WithTitleAnnotation("Recall"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithString("action", mcp.Required(), mcp.Description("One of: search, view, purge, restore")),
			mcp.WithString("query", mcp.Description("Search query text, for action=search")),
			mcp.WithString("id", mcp.Description("Observation id, for action=view/purge/restore")),
			mcp.WithString("detail", mcp.Description("For action=view: compact, timeline, or full (default compact)")),
			mcp.WithNumber("limit", mcp.Description("Max results for action=search (default 10)")),
			mcp.WithBoolean("include_purged", mcp.Description("Include soft-deleted observations in search results")),
		),
		handleRecall(h),
	)

	srv.AddTool(
		mcp.NewTool("topic_context",
			mcp.WithDescription("List stashed contexts from prior topic shifts, most recent first. Answers \"where was I?\"."),
			mcp.WithTitleAnnotation("Topic Context"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithNumber("limit", mcp.Description("Max stashes to return (default 10)")),
		),
		handleTopicContext(h),
	)

	srv.AddTool(
		mcp.NewTool("query_graph",
			mcp.WithDescription("Search the knowledge graph for entities (files, tools, decisions, problems, solutions, references) and traverse their relationships."),
			mcp.WithTitleAnnotation("Query Graph"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithString("query", mcp.Required(), mcp.Description("Entity name or partial name to look up")),
			mcp.WithString("entityType", mcp.Description("Restrict to one entity type: File, Tool, Project, Decision, Problem, Solution, Reference")),
			mcp.WithNumber("depth", mcp.Description("Traversal depth, 1-4 (default 1)")),
			mcp.WithString("edgeTypes", mcp.Description("Comma-separated edge types to follow (default: all)")),
		),
		handleQueryGraph(h),
	)

	srv.AddTool(
		mcp.NewTool("graph_stats",
			mcp.WithDescription("Knowledge graph health dashboard: node/edge counts, type distributions, degree stats, hotspots, duplicate candidates, and staleness flags."),
			mcp.WithTitleAnnotation("Graph Stats"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
		),
		handleGraphStats(h),
	)

	srv.AddTool(
		mcp.NewTool("discover_tools",
			mcp.WithDescription("Search the tool registry by what a tool does rather than its exact name."),
			mcp.WithTitleAnnotation("Discover Tools"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithString("query", mcp.Required(), mcp.Description("What you're trying to do")),
			mcp.WithString("scope", mcp.Description("Restrict to: global, project, or plugin")),
			mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
		),
		handleDiscoverTools(h),
	)

	return srv
}
