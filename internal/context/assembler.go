// Package context builds the synchronous session-start payload: a
// character-budgeted digest of prior-session state, live stashes,
// relevant history, and the tools available to the host agent
// (spec.md §4.7).
package context

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/laminark/laminark/internal/search"
	"github.com/laminark/laminark/internal/store"
)

const (
	totalBudget = 6000
	toolsBudget = 500
)

// Store is the subset of *store.Store the assembler reads from, narrowed
// for testability against a fake.
type Store interface {
	search.Store
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error)
	ListStashes(ctx context.Context, projectHash string, includeResumed bool) ([]*store.Stash, error)
	ListToolRegistry(ctx context.Context, projectHash string) ([]*store.ToolRegistryEntry, error)
}

// Embedder is the narrow embedding dependency HybridSearch needs.
type Embedder = search.Embedder

// Assembler builds session-start context.
type Assembler struct {
	store    Store
	embedder Embedder
}

// New constructs an Assembler.
func New(st Store, embedder Embedder) *Assembler {
	return &Assembler{store: st, embedder: embedder}
}

// section is one priority-ordered chunk of the assembled payload. Sections
// drop in reverse order (Tools first, then older observations) when the
// total exceeds totalBudget.
type section struct {
	priority int
	text     string
}

// Assemble builds the session-start context string for a project, honoring
// the 6,000-character hard budget with a 500-character Available-Tools
// sub-budget. It satisfies ingest.Assembler.
func (a *Assembler) Assemble(ctx context.Context, projectHash, sessionID string) (string, error) {
	var sections []section

	lastObs, lastSessionSummary := a.lastSessionContext(ctx, projectHash, sessionID)
	if lastSessionSummary != "" {
		sections = append(sections, section{
			priority: 1,
			text:     fmt.Sprintf("## Previous session\n%s\n", lastSessionSummary),
		})
	}

	if stashText := a.stashSection(ctx, projectHash); stashText != "" {
		sections = append(sections, section{priority: 2, text: stashText})
	}

	if lastObs != nil {
		if relevantText := a.relevantObservationsSection(ctx, projectHash, lastObs); relevantText != "" {
			sections = append(sections, section{priority: 3, text: relevantText})
		}
	}

	if toolsText := a.toolsSection(ctx, projectHash); toolsText != "" {
		sections = append(sections, section{priority: 4, text: truncateBudget(toolsText, toolsBudget)})
	}

	return fitBudget(sections, totalBudget), nil
}

// lastSessionContext finds the most recent observation recorded for this
// project under a different session (i.e. the previous session), and
// returns it along with that session's closing summary, if any.
func (a *Assembler) lastSessionContext(ctx context.Context, projectHash, sessionID string) (*store.Observation, string) {
	obs, err := a.store.ListObservations(ctx, store.ObservationFilter{ProjectHash: projectHash, Limit: 20})
	if err != nil {
		return nil, ""
	}
	for _, o := range obs {
		if o.SessionID == "" || o.SessionID == sessionID {
			continue
		}
		sess, err := a.store.GetSession(ctx, o.SessionID)
		if err != nil {
			return o, ""
		}
		return o, sess.Summary
	}
	return nil, ""
}

func (a *Assembler) stashSection(ctx context.Context, projectHash string) string {
	stashes, err := a.store.ListStashes(ctx, projectHash, false)
	if err != nil || len(stashes) == 0 {
		return ""
	}
	if len(stashes) > 5 {
		stashes = stashes[:5]
	}
	var b strings.Builder
	b.WriteString("## Stashed contexts\n")
	for _, st := range stashes {
		fmt.Fprintf(&b, "- %q (%s) — resume with stash id %s\n", st.TopicLabel, st.Summary, st.ID)
	}
	return b.String()
}

func (a *Assembler) relevantObservationsSection(ctx context.Context, projectHash string, seed *store.Observation) string {
	query := seed.Title
	if query == "" {
		query = seed.Content
	}
	if query == "" {
		return ""
	}
	results, err := search.HybridSearch(ctx, a.store, a.embedder, projectHash, query, 5)
	if err != nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant prior work\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Snippet)
	}
	return b.String()
}

// toolRank scores a registry entry by recency-weighted usage over the
// trailing 7 days, per spec.md §4.7's 0.7/0.3 recency-weighted formula.
func toolRank(e *store.ToolRegistryEntry, maxUsage int64, now time.Time) float64 {
	var normalizedRecentCount float64
	if maxUsage > 0 {
		normalizedRecentCount = float64(e.UsageCount) / float64(maxUsage)
	}
	var recency float64
	if e.LastUsedAt != nil {
		ageDays := now.Sub(*e.LastUsedAt).Hours() / 24
		recency = math.Exp(-math.Ln2 * ageDays / 7)
	}
	return 0.7*normalizedRecentCount + 0.3*recency
}

func (a *Assembler) toolsSection(ctx context.Context, projectHash string) string {
	entries, err := a.store.ListToolRegistry(ctx, projectHash)
	if err != nil || len(entries) == 0 {
		return ""
	}

	// MCP-server entries suppress their child tool entries: a server's
	// tools are implied by its presence, so listing both is redundant.
	suppressed := map[string]bool{}
	for _, e := range entries {
		if e.Type == store.ToolTypeMCPServer {
			suppressed[e.ServerName] = true
		}
	}
	visible := make([]*store.ToolRegistryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type == store.ToolTypeMCPTool && suppressed[e.ServerName] {
			continue
		}
		visible = append(visible, e)
	}

	var maxUsage int64
	for _, e := range visible {
		if e.UsageCount > maxUsage {
			maxUsage = e.UsageCount
		}
	}

	now := time.Now().UTC()
	sort.SliceStable(visible, func(i, j int) bool {
		return toolRank(visible[i], maxUsage, now) > toolRank(visible[j], maxUsage, now)
	})

	var b strings.Builder
	b.WriteString("## Available tools\n")
	for _, e := range visible {
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
	}
	return b.String()
}

func truncateBudget(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// fitBudget concatenates sections in priority order, dropping lowest
// priority first (Tools, then older observations) until the total fits
// totalBudget.
func fitBudget(sections []section, budget int) string {
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].priority < sections[j].priority })
	for len(sections) > 0 {
		total := 0
		for _, s := range sections {
			total += len(s.text)
		}
		if total <= budget {
			break
		}
		sections = sections[:len(sections)-1]
	}
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.text)
		b.WriteString("\n")
	}
	out := b.String()
	if len(out) > budget {
		out = out[:budget]
	}
	return out
}
