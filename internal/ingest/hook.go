// Package ingest implements the synchronous hook entry point: redaction,
// admission filtering, and observation extraction from tool events.
package ingest

import (
	"context"
	"log"

	"github.com/laminark/laminark/internal/redact"
	"github.com/laminark/laminark/internal/store"
)

// EventKind enumerates the hook event types HookIngest accepts.
type EventKind string

const (
	EventPostToolUse        EventKind = "PostToolUse"
	EventPostToolUseFailure EventKind = "PostToolUseFailure"
	EventSessionStart       EventKind = "SessionStart"
	EventSessionEnd         EventKind = "SessionEnd"
	EventStop               EventKind = "Stop"
)

// Store is the subset of *store.Store HookIngest writes through.
type Store interface {
	CreateObservation(ctx context.Context, o *store.Observation) (*store.Observation, error)
	CreateSession(ctx context.Context, id string) (*store.Session, error)
	EndSession(ctx context.Context, id, summary string) error
}

// Summarizer produces a session-end summary from its observations. The
// orchestrator supplies the concrete implementation; tests use a stub.
type Summarizer interface {
	Summarize(ctx context.Context, projectHash, sessionID string) (string, error)
}

// Assembler builds the session-start context payload. Wired after
// construction via SetAssembler, since internal/context depends on
// internal/store the same way internal/ingest does, and neither package
// should import the other directly.
type Assembler interface {
	Assemble(ctx context.Context, projectHash, sessionID string) (string, error)
}

// HookIngest is the single synchronous entry point per hook event
// (spec.md §4.4). One instance is constructed per project by the
// orchestrator.
type HookIngest struct {
	store           Store
	redactor        *redact.Redactor
	selfNames       func() map[string]bool
	excludedMarkers []string
	summarizer      Summarizer
	assembler       Assembler
	logger          *log.Logger
}

// SetAssembler wires the context assembler after construction.
func (h *HookIngest) SetAssembler(a Assembler) { h.assembler = a }

// Option configures a HookIngest at construction.
type Option func(*HookIngest)

// WithExcludedPathMarkers adds project-specific excluded-path substrings on
// top of the built-in set (.env, credentials, secrets, .pem, .key, id_rsa).
func WithExcludedPathMarkers(markers []string) Option {
	return func(h *HookIngest) { h.excludedMarkers = markers }
}

// WithSummarizer wires the session-end summarization collaborator.
func WithSummarizer(s Summarizer) Option {
	return func(h *HookIngest) { h.summarizer = s }
}

// New constructs a HookIngest. selfNames returns the current set of
// Laminark's own tool names, so the self-referential reject list can never
// drift from the registered tool surface (spec.md §4.4(a)).
func New(st Store, redactor *redact.Redactor, selfNames func() map[string]bool, logger *log.Logger, opts ...Option) *HookIngest {
	h := &HookIngest{store: st, redactor: redactor, selfNames: selfNames, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Result is returned to the hook's host process. It is always a success:
// internal failures are logged, never surfaced as a blocking error
// (spec.md §4.4's exit contract).
type Result struct {
	Admitted      bool
	ObservationID string
	Context       string // populated on SessionStart
}

// Handle processes one hook event end to end and never returns an error
// that should block the calling tool.
func (h *HookIngest) Handle(ctx context.Context, kind EventKind, projectHash string, ev ToolEvent) Result {
	switch kind {
	case EventPostToolUse, EventPostToolUseFailure:
		return h.handleToolUse(ctx, projectHash, ev, kind == EventPostToolUseFailure)
	case EventSessionStart:
		return h.handleSessionStart(ctx, projectHash, ev.SessionID)
	case EventSessionEnd:
		h.handleSessionEnd(ctx, projectHash, ev.SessionID)
		return Result{}
	case EventStop:
		// Summarization for Stop is best-effort and identical to
		// SessionEnd's path; any pending work was already scheduled there.
		return Result{}
	default:
		h.logger.Printf("ingest: unknown event kind %q", kind)
		return Result{}
	}
}

func (h *HookIngest) handleToolUse(ctx context.Context, projectHash string, ev ToolEvent, failed bool) Result {
	ev.Failed = failed

	if h.selfNames != nil && h.selfNames()[ev.ToolName] {
		return Result{}
	}

	if path := pathFromInput(ev.Input); excludedPath(path, h.excludedMarkers) {
		return Result{}
	}

	summary := extractSummary(ev)
	if !admit(ev.ToolName, summary.content) {
		return Result{}
	}

	redactedContent := h.redactor.Redact(summary.content)
	redactedTitle := h.redactor.Redact(summary.title)

	obs, err := h.store.CreateObservation(ctx, &store.Observation{
		ProjectHash: projectHash,
		Title:       redactedTitle,
		Content:     redactedContent,
		Source:      "hook:" + ev.ToolName,
		SessionID:   ev.SessionID,
		Kind:        store.ObservationKindEvent,
	})
	if err != nil {
		h.logger.Printf("ingest: create observation failed: %v", err)
		return Result{}
	}
	return Result{Admitted: true, ObservationID: obs.ID}
}

func (h *HookIngest) handleSessionStart(ctx context.Context, projectHash, sessionID string) Result {
	sess, err := h.store.CreateSession(ctx, sessionID)
	if err != nil {
		h.logger.Printf("ingest: create session failed: %v", err)
		return Result{}
	}
	// Context assembly is synchronous but time-budgeted; the orchestrator
	// wires the real assembler in after construction via SetAssembler to
	// avoid an import cycle between ingest and context.
	if h.assembler != nil {
		assembled, err := h.assembler.Assemble(ctx, projectHash, sess.ID)
		if err != nil {
			h.logger.Printf("ingest: context assembly failed: %v", err)
			return Result{}
		}
		return Result{Context: assembled}
	}
	return Result{}
}

func (h *HookIngest) handleSessionEnd(ctx context.Context, projectHash, sessionID string) {
	summary := ""
	if h.summarizer != nil {
		var err error
		summary, err = h.summarizer.Summarize(ctx, projectHash, sessionID)
		if err != nil {
			h.logger.Printf("ingest: summarization failed: %v", err)
		}
	}
	if err := h.store.EndSession(ctx, sessionID, summary); err != nil {
		h.logger.Printf("ingest: end session failed: %v", err)
	}
}
