package embedding

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// request is a single unit of work sent to the worker: text to embed and a
// reply channel the caller blocks on. Using a typed channel of records
// rather than a generic task queue keeps the worker's surface to exactly
// what embedding needs.
type request struct {
	id     uint64
	text   string
	texts  []string
	reply  chan result
}

type result struct {
	vec  []float32
	vecs [][]float32
	err  error
}

// Worker serializes all embedding calls onto a single backend instance
// through a buffered channel, so a slow or misbehaving local model never
// blocks more than one caller at a time and never races the backend.
type Worker struct {
	backend Backend
	logger  *log.Logger
	limiter *rate.Limiter

	requests chan request
	nextID   uint64

	wg       sync.WaitGroup
	shutdown chan struct{}
	ready    atomic.Bool
}

// NewWorker starts the worker's background goroutine and returns
// immediately; Ready() reports when the backend has finished initializing.
func NewWorker(backend Backend, logger *log.Logger) *Worker {
	w := &Worker{
		backend:  backend,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
		requests: make(chan request, 64),
		shutdown: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Worker) run() {
	defer w.wg.Done()
	w.ready.Store(true)
	for {
		select {
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			w.serve(req)
		case <-w.shutdown:
			// drain any requests already queued before exiting so callers
			// waiting on reply channels don't block forever.
			for {
				select {
				case req := <-w.requests:
					w.serve(req)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) serve(req request) {
	if err := w.limiter.Wait(context.Background()); err != nil {
		req.reply <- result{err: err}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if req.texts != nil {
		vecs, err := w.backend.EmbedBatch(ctx, req.texts)
		req.reply <- result{vecs: vecs, err: err}
		return
	}
	vec, err := w.backend.Embed(ctx, req.text)
	req.reply <- result{vec: vec, err: err}
}

// Ready reports whether the worker's backend has completed initialization.
func (w *Worker) Ready() bool { return w.ready.Load() }

// BackendName reports which backend the worker is currently running,
// surfaced in diagnostics so a degraded keyword-only mode is visible.
func (w *Worker) BackendName() string { return w.backend.Name() }

// Embed submits a single text for embedding and blocks for the result, up
// to the request's own 30-second timeout. Repeated calls with the same
// text within a short window are served from the signal cache instead of
// re-queuing onto the backend.
func (w *Worker) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := globalSignalCache.get(text); ok {
		return vec, nil
	}

	reply := make(chan result, 1)
	req := request{id: atomic.AddUint64(&w.nextID, 1), text: text, reply: reply}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.shutdown:
		return nil, fmt.Errorf("embedding: worker is shutting down")
	}

	select {
	case res := <-reply:
		if res.err == nil {
			globalSignalCache.put(text, res.vec)
		}
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch submits a batch of texts as one request, preserving order.
func (w *Worker) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reply := make(chan result, 1)
	req := request{id: atomic.AddUint64(&w.nextID, 1), texts: texts, reply: reply}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.shutdown:
		return nil, fmt.Errorf("embedding: worker is shutting down")
	}

	select {
	case res := <-reply:
		return res.vecs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting new work, drains requests already queued, and
// waits for the run loop to exit.
func (w *Worker) Shutdown() {
	close(w.shutdown)
	w.wg.Wait()
}
