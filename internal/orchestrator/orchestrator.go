// Package orchestrator wires Laminark's components into a single running
// process: the one explicit state record the rest of the module is built
// around (no package-level singletons besides embedding's documented
// signal cache).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/laminark/laminark/internal/broadcast"
	"github.com/laminark/laminark/internal/config"
	appcontext "github.com/laminark/laminark/internal/context"
	"github.com/laminark/laminark/internal/embedding"
	"github.com/laminark/laminark/internal/graph"
	"github.com/laminark/laminark/internal/ingest"
	"github.com/laminark/laminark/internal/projecthash"
	"github.com/laminark/laminark/internal/redact"
	"github.com/laminark/laminark/internal/store"
	"github.com/laminark/laminark/internal/summarize"
	"github.com/laminark/laminark/internal/tools"
	"github.com/laminark/laminark/internal/topic"
	"github.com/mark3labs/mcp-go/server"
)

const (
	embeddingSweepInterval = 5 * time.Second
	curationInterval       = 5 * time.Minute
	embeddingSweepBatch    = 50
)

// Orchestrator owns every long-lived component and the background loops
// that drive them (spec.md §4.10/§6).
type Orchestrator struct {
	cfg         *config.Config
	log         *log.Logger
	ProjectHash string

	Store     *store.Store
	Bus       *broadcast.Bus
	Worker    *embedding.Worker
	Graph     *graph.Pipeline
	Topic     *topic.Detector
	Assembler *appcontext.Assembler
	Ingest    *ingest.HookIngest
	MCPServer *server.MCPServer

	stop    chan struct{}
	loopsWG sync.WaitGroup
}

// New constructs every component but starts no background loop; call Run
// to start the process's lifetime. projectPath is the working directory
// the MCP server and hook ingest instances are scoped to — it is hashed,
// never stored raw, per spec.md §4.1's project-hash identity scheme.
func New(cfg *config.Config, projectPath string, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags)
	}
	projectHash := projecthash.Compute(projectPath)

	dbPath := filepath.Join(cfg.DataDir, "laminark.db")
	st, err := store.Open(dbPath, store.Options{
		BusyTimeout: time.Duration(cfg.Store.BusyTimeoutSeconds) * time.Second,
		Logger:      log.New(logger.Writer(), "[STORE] ", log.LstdFlags),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open store: %w", err)
	}

	bus, err := broadcast.New(log.New(logger.Writer(), "[BROADCAST] ", log.LstdFlags))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("orchestrator: start broadcast: %w", err)
	}

	backend := embedding.NewBackend(embedding.Mode(cfg.EmbeddingMode), log.New(logger.Writer(), "[EMBEDDING] ", log.LstdFlags))
	worker := embedding.NewWorker(backend, log.New(logger.Writer(), "[EMBEDDING] ", log.LstdFlags))

	graphPipeline := graph.New(st, graph.Config{
		Gate:              graph.QualityGate{MaxFileNodes: cfg.Graph.MaxFileNodesPerEvent},
		MinEdgeConfidence: cfg.Graph.MinEdgeConfidence,
		MaxDegree:         cfg.Graph.MaxDegree,
	})

	topicDetector := topic.New(st, bus, log.New(logger.Writer(), "[TOPIC] ", log.LstdFlags))

	assembler := appcontext.New(st, worker)

	redactor := redact.NewRedactor()
	summarizer := summarize.New(st)

	o := &Orchestrator{
		cfg:         cfg,
		log:         logger,
		ProjectHash: projectHash,
		Store:       st,
		Bus:         bus,
		Worker:      worker,
		Graph:       graphPipeline,
		Topic:       topicDetector,
		Assembler:   assembler,
		stop:        make(chan struct{}),
	}

	hookIngest := ingest.New(st, redactor, tools.Names, log.New(logger.Writer(), "[INGEST] ", log.LstdFlags),
		ingest.WithSummarizer(summarizer))
	hookIngest.SetAssembler(assembler)
	o.Ingest = hookIngest

	o.MCPServer = tools.NewServer(&tools.Handlers{
		Store:       st,
		Embedder:    worker,
		ProjectHash: projectHash,
		Logger:      log.New(logger.Writer(), "[TOOLS] ", log.LstdFlags),
	})

	return o, nil
}

// Run starts the background loops and blocks until ctx is canceled, then
// runs the shutdown ladder: stop loops, drain broadcast, shut down the
// embedding worker, close the store.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.loopsWG.Add(2)
	go o.embeddingSweepLoop(ctx)
	go o.curationLoop(ctx)

	<-ctx.Done()
	return o.Shutdown()
}

// Shutdown runs the stop ladder once: signal loops to stop, wait for them
// (bounded), drain the broadcast bus, shut down the embedding worker, close
// the store. Grounded on the teacher's agent-stop ladder (signal, wait with
// timeout, force), adapted from process-level to goroutine-level since
// there is no child process to kill here.
func (o *Orchestrator) Shutdown() error {
	close(o.stop)

	done := make(chan struct{})
	go func() {
		o.loopsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.log.Printf("orchestrator: background loops stopped")
	case <-time.After(10 * time.Second):
		o.log.Printf("orchestrator: background loops did not stop within timeout, continuing shutdown anyway")
	}

	o.Bus.Close()
	o.Worker.Shutdown()
	if err := o.Store.Close(); err != nil {
		return fmt.Errorf("orchestrator: close store: %w", err)
	}
	return nil
}

// embeddingSweepLoop is the one place observations gain vectors and feed
// into the topic detector and graph pipeline (spec.md §6's "background
// domain" — a single task per loop, no intra-loop parallelism, to keep
// Store write contention bounded).
func (o *Orchestrator) embeddingSweepLoop(ctx context.Context) {
	defer o.loopsWG.Done()
	ticker := time.NewTicker(embeddingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(ctx)
		}
	}
}

func (o *Orchestrator) sweepOnce(ctx context.Context) {
	pending, err := o.Store.PendingEmbeddings(ctx, embeddingSweepBatch)
	if err != nil {
		o.log.Printf("embedding sweep: list pending: %v", err)
		return
	}
	for _, obs := range pending {
		vec, err := o.Worker.Embed(ctx, obs.Title+"\n"+obs.Content)
		if err != nil {
			o.log.Printf("embedding sweep: embed %s: %v", obs.ID, err)
			continue
		}
		if len(vec) == 0 {
			continue // keyword-only backend: nothing to persist
		}
		if err := o.Store.SetEmbedding(ctx, obs.ID, obs.ProjectHash, o.Worker.BackendName(), vec); err != nil {
			o.log.Printf("embedding sweep: write vector %s: %v", obs.ID, err)
			continue
		}
		obs.Embedding = vec

		if obs.SessionID != "" {
			if err := o.Topic.Observe(ctx, obs.ProjectHash, obs); err != nil {
				o.log.Printf("embedding sweep: topic observe %s: %v", obs.ID, err)
			}
		}
		if err := o.Graph.Process(ctx, obs.ProjectHash, obs); err != nil {
			o.log.Printf("embedding sweep: graph process %s: %v", obs.ID, err)
		}
		o.Bus.Publish(obs.ProjectHash, "new_observation", map[string]any{"observation_id": obs.ID})
	}
}

// curationLoop periodically decays graph edges and prunes long-orphaned
// nodes, project by project, per spec.md §4.6's temporal decay model.
func (o *Orchestrator) curationLoop(ctx context.Context) {
	defer o.loopsWG.Done()
	ticker := time.NewTicker(curationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.curateOnce(ctx)
		}
	}
}

func (o *Orchestrator) curateOnce(ctx context.Context) {
	projectHashes, err := o.activeProjectHashes(ctx)
	if err != nil {
		o.log.Printf("curation: list projects: %v", err)
		return
	}
	for _, ph := range projectHashes {
		decayCfg := graph.DecayConfig{
			HalfLifeDays:    o.cfg.Graph.HalfLifeDays,
			MaxAgeDays:      o.cfg.Graph.MaxAgeDays,
			DecayFloor:      o.cfg.Graph.DecayFloor,
			DeleteThreshold: o.cfg.Graph.DeleteThreshold,
		}
		if err := graph.DecayEdges(ctx, o.Store, ph, decayCfg, time.Now().UTC()); err != nil {
			o.log.Printf("curation: decay edges for %s: %v", ph, err)
		}
		if _, err := graph.PruneOrphans(ctx, o.Store, ph, o.cfg.Hygiene.PruneOrphansAfterDays, time.Now().UTC()); err != nil {
			o.log.Printf("curation: prune orphans for %s: %v", ph, err)
		}
	}
}

// activeProjectHashes discovers distinct project hashes from stored
// observations, since the store has no standalone project registry — a
// project's existence is implied by its data, not a row of its own.
func (o *Orchestrator) activeProjectHashes(ctx context.Context) ([]string, error) {
	return o.Store.DistinctProjectHashes(ctx)
}
