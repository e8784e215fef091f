// Command laminark-serve is the long-lived process: it owns the Store,
// the embedded broadcast bus, the embedding/graph/topic background loops,
// and exposes the MCP tool surface over stdio to the host agent, plus an
// HTTP/SSE endpoint for replay and a dashboard view.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/laminark/laminark/internal/broadcast"
	"github.com/laminark/laminark/internal/config"
	"github.com/laminark/laminark/internal/orchestrator"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mattn/go-isatty"
)

// banner prints a human-oriented startup summary when stderr is an
// interactive terminal, or a single compact log line otherwise — stdout is
// reserved for the MCP protocol, so all of this goes to stderr.
func banner(logger *log.Logger, projectDir string, cfg *config.Config) {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logger.Printf("laminark-serve starting: project=%s data_dir=%s embedding=%s web_port=%d",
			projectDir, cfg.DataDir, cfg.EmbeddingMode, cfg.WebPort)
		return
	}
	fmt.Fprintln(os.Stderr, "===============================================")
	fmt.Fprintln(os.Stderr, "  laminark-serve")
	fmt.Fprintf(os.Stderr, "  project:    %s\n", projectDir)
	fmt.Fprintf(os.Stderr, "  data dir:   %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stderr, "  embedding:  %s\n", cfg.EmbeddingMode)
	fmt.Fprintf(os.Stderr, "  dashboard:  http://localhost:%d/events\n", cfg.WebPort)
	fmt.Fprintln(os.Stderr, "===============================================")
}

func main() {
	projectDir := flag.String("project", "", "project working directory to scope this server to (defaults to process cwd)")
	dataDir := flag.String("data-dir", "", "override the configured data directory")
	webPort := flag.Int("web-port", 0, "override the configured dashboard/SSE port (0 = use config)")
	flag.Parse()

	logger := log.New(os.Stderr, "[SERVE] ", log.LstdFlags)

	dir := *projectDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			logger.Fatalf("resolve project directory: %v", err)
		}
	}

	cfgDir := config.Default().DataDir
	if *dataDir != "" {
		cfgDir = *dataDir
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *webPort > 0 {
		cfg.WebPort = *webPort
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatalf("create data dir %s: %v", cfg.DataDir, err)
	}

	banner(logger, dir, cfg)

	o, err := orchestrator.New(cfg, dir, logger)
	if err != nil {
		logger.Fatalf("construct orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- o.Run(ctx) }()

	httpServer := newViewServer(cfg.WebPort, o.Bus)
	go func() {
		logger.Printf("dashboard/SSE listening on :%d", cfg.WebPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("http server error: %v", err)
		}
	}()

	mcpDone := make(chan error, 1)
	go func() { mcpDone <- server.ServeStdio(o.MCPServer) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Printf("shutdown signal received")
	case err := <-mcpDone:
		if err != nil {
			logger.Printf("mcp server exited: %v", err)
		} else {
			logger.Printf("mcp client disconnected (stdin closed)")
		}
	}

	_ = httpServer.Close()
	cancel()
	if err := <-runDone; err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Printf("laminark-serve shutdown complete")
}

// newViewServer builds the optional HTTP surface: a health check and an
// SSE stream of broadcast events supporting Last-Event-ID replay
// (spec.md §4.9/§6).
func newViewServer(port int, bus *broadcast.Bus) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		var lastID uint64
		if v := r.Header.Get("Last-Event-ID"); v != "" {
			if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
				lastID = parsed
			}
		}

		for _, ev := range bus.Since(lastID) {
			writeSSE(w, ev)
		}
		flusher.Flush()

		live, unsub := bus.Subscribe()
		defer unsub()

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				writeSSE(w, ev)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}

func writeSSE(w http.ResponseWriter, ev broadcast.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", ev.ID, data)
}
