// Package summarize produces a short extractive summary of a session's
// observations for SessionEnd, satisfying internal/ingest's Summarizer
// seam. spec.md's fuller "KissSummary" collaborator is an explicitly
// deferred Open Question (§9) — this is the minimal local stand-in, not
// that feature.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/laminark/laminark/internal/store"
)

const (
	maxHighlights = 5
	maxSummaryLen = 600
)

// Store is the subset of *store.Store the summarizer reads.
type Store interface {
	ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error)
}

// Summarizer builds a session summary by concatenating the titles of the
// session's highest-signal observations, oldest first, favoring Write/Edit
// and decision/error content over navigation noise.
type Summarizer struct {
	store Store
}

func New(st Store) *Summarizer { return &Summarizer{store: st} }

// Summarize implements ingest.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, projectHash, sessionID string) (string, error) {
	obs, err := s.store.ListObservations(ctx, store.ObservationFilter{
		ProjectHash: projectHash,
		SessionID:   sessionID,
		Limit:       500,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: list observations: %w", err)
	}
	if len(obs) == 0 {
		return "", nil
	}

	highlights := rankHighlights(obs)
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}

	var b strings.Builder
	for i, o := range highlights {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(firstLine(o.Title))
	}
	summary := b.String()
	if len(summary) > maxSummaryLen {
		summary = summary[:maxSummaryLen] + "…"
	}
	return summary, nil
}

// rankHighlights prefers Write/Edit-sourced observations (the admission
// filter's own high-signal tier, per spec.md §4.4(c)), falling back to
// chronological order within each tier so the summary reads as a
// narrative.
func rankHighlights(obs []*store.Observation) []*store.Observation {
	var changes, other []*store.Observation
	for _, o := range obs {
		if !o.Visible() {
			continue
		}
		if strings.HasPrefix(o.Source, "hook:Write") || strings.HasPrefix(o.Source, "hook:Edit") || strings.HasPrefix(o.Source, "hook:MultiEdit") {
			changes = append(changes, o)
		} else {
			other = append(other, o)
		}
	}
	return append(changes, other...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
