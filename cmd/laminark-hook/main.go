// Command laminark-hook is the fast synchronous entry point invoked once
// per tool-use/session event by the host agent's hook mechanism. It reads
// one JSON event from stdin, runs it through HookIngest, and (for
// SessionStart) writes the assembled context payload to stdout, then exits.
// It never blocks the calling tool on anything slower than a single SQLite
// transaction — embedding, topic detection, and graph extraction all run
// later, in laminark-serve's background loops.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	appcontext "github.com/laminark/laminark/internal/context"
	"github.com/laminark/laminark/internal/embedding"
	"github.com/laminark/laminark/internal/config"
	"github.com/laminark/laminark/internal/ingest"
	"github.com/laminark/laminark/internal/projecthash"
	"github.com/laminark/laminark/internal/redact"
	"github.com/laminark/laminark/internal/store"
	"github.com/laminark/laminark/internal/summarize"
	"github.com/laminark/laminark/internal/tools"
)

// hookPayload mirrors the host's hook event JSON. Field names follow the
// conventions of tool-use hook events: a kind discriminator plus the
// PostToolUse-specific fields, all optional so one struct decodes every
// event kind this binary handles.
type hookPayload struct {
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	ToolOutput    string         `json:"tool_output"`
	SessionID     string         `json:"session_id"`
	Cwd           string         `json:"cwd"`
}

func main() {
	cwdFlag := flag.String("cwd", "", "project working directory (defaults to the process cwd)")
	timeout := flag.Duration("timeout", 3*time.Second, "max time to spend on this event")
	flag.Parse()

	logger := log.New(os.Stderr, "[HOOK] ", log.LstdFlags)

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Printf("read stdin: %v", err)
		os.Exit(0) // hooks must never block the host tool on our failure
	}
	var payload hookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Printf("parse event: %v", err)
		os.Exit(0)
	}

	projectDir := payload.Cwd
	if *cwdFlag != "" {
		projectDir = *cwdFlag
	}
	if projectDir == "" {
		projectDir, _ = os.Getwd()
	}
	projectHash := projecthash.Compute(projectDir)

	cfg, err := config.Load(config.Default().DataDir)
	if err != nil {
		logger.Printf("load config: %v", err)
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := store.Open(filepath.Join(cfg.DataDir, "laminark.db"), store.Options{
		BusyTimeout: time.Duration(cfg.Store.BusyTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		logger.Printf("open store: %v", err)
		os.Exit(0)
	}
	defer st.Close()

	backend := embedding.NewBackend(embedding.ModeKeywordOnly, logger)
	embedder := embedding.NewWorker(backend, logger)
	defer embedder.Shutdown()

	redactor := redact.NewRedactor()
	summarizer := summarize.New(st)
	assembler := appcontext.New(st, embedder)

	hookIngest := ingest.New(st, redactor, tools.Names, logger, ingest.WithSummarizer(summarizer))
	hookIngest.SetAssembler(assembler)

	kind, ev := normalize(payload)
	result := hookIngest.Handle(ctx, kind, projectHash, ev)

	if result.Context != "" {
		fmt.Fprint(os.Stdout, result.Context)
	}
}

func normalize(p hookPayload) (ingest.EventKind, ingest.ToolEvent) {
	ev := ingest.ToolEvent{
		ToolName:  p.ToolName,
		Input:     p.ToolInput,
		Output:    p.ToolOutput,
		SessionID: p.SessionID,
	}
	switch p.HookEventName {
	case "PostToolUse":
		return ingest.EventPostToolUse, ev
	case "PostToolUseFailure":
		return ingest.EventPostToolUseFailure, ev
	case "SessionStart":
		return ingest.EventSessionStart, ev
	case "SessionEnd":
		return ingest.EventSessionEnd, ev
	case "Stop":
		return ingest.EventStop, ev
	default:
		return ingest.EventKind(p.HookEventName), ev
	}
}
