// Package embedding computes vector embeddings for observation text off the
// hot path of tool calls, through a single background worker that owns the
// backend and serializes requests onto it.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"math"
)

// Backend generates embeddings for text. Implementations mirror the
// teacher's EmbeddingProvider shape (Embed/EmbedBatch/Dimensions) so the
// worker can swap backends without touching its channel plumbing.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Mode selects which Backend the worker constructs.
type Mode string

const (
	ModeLocal      Mode = "local"
	ModePiggyback  Mode = "piggyback"
	ModeHybrid     Mode = "hybrid"
	ModeKeywordOnly Mode = "keyword_only"
)

// NewBackend constructs the requested backend, falling back to
// KeywordOnlyBackend if construction fails — embedding is an enrichment,
// not a dependency the rest of the system can block on (spec.md §7).
func NewBackend(mode Mode, logger *log.Logger) Backend {
	switch mode {
	case ModeLocal:
		b, err := newLocalQuantizedBackend()
		if err != nil {
			logger.Printf("embedding: local backend unavailable (%v), falling back to keyword-only", err)
			return newKeywordOnlyBackend()
		}
		return b
	case ModePiggyback:
		return newPiggybackBackend(logger)
	case ModeHybrid:
		local, err := newLocalQuantizedBackend()
		if err != nil {
			logger.Printf("embedding: local backend unavailable (%v), falling back to piggyback only", err)
			return newPiggybackBackend(logger)
		}
		return newHybridBackend(local, newPiggybackBackend(logger))
	default:
		return newKeywordOnlyBackend()
	}
}

// hybridBackend blends a primary (local) and secondary (piggyback) backend
// 70/30, on the theory that a host-supplied vector is a useful but
// noisier signal than the locally computed one.
type hybridBackend struct {
	primary, secondary Backend
}

const (
	hybridPrimaryWeight   = 0.7
	hybridSecondaryWeight = 0.3
)

func newHybridBackend(primary, secondary Backend) *hybridBackend {
	return &hybridBackend{primary: primary, secondary: secondary}
}

func (b *hybridBackend) Name() string    { return "hybrid" }
func (b *hybridBackend) Dimensions() int { return b.primary.Dimensions() }

func (b *hybridBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	pv, err := b.primary.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	sv, err := b.secondary.Embed(ctx, text)
	if err != nil || len(sv) != len(pv) {
		return pv, nil
	}
	return blend(pv, sv, hybridPrimaryWeight, hybridSecondaryWeight), nil
}

func (b *hybridBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := b.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func blend(a, b []float32, wa, wb float64) []float32 {
	out := make([]float32, len(a))
	var norm float64
	for i := range a {
		out[i] = float32(float64(a[i])*wa + float64(b[i])*wb)
		norm += float64(out[i]) * float64(out[i])
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

// localQuantizedBackend produces deterministic, dependency-free vectors
// from a hashed bag-of-words signature. It stands in for an on-device
// quantized model: same interface, same determinism requirements, no
// network calls. Swap in a real local model runner behind this type
// without touching callers.
type localQuantizedBackend struct {
	dims int
}

func newLocalQuantizedBackend() (*localQuantizedBackend, error) {
	return &localQuantizedBackend{dims: 256}, nil
}

func (b *localQuantizedBackend) Name() string { return "local-quantized" }
func (b *localQuantizedBackend) Dimensions() int { return b.dims }

func (b *localQuantizedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashEmbed(text, b.dims), nil
}

func (b *localQuantizedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, b.dims)
	}
	return out, nil
}

// hashEmbed folds SHA-256 digests of overlapping token shingles into a
// fixed-width vector and L2-normalizes it, giving texts that share
// vocabulary a nonzero cosine similarity without any model weights.
func hashEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	tokens := tokenize(text)
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i < 4; i++ {
			idx := int(sum[i*4])<<8 | int(sum[i*4+1])
			idx %= dims
			sign := float32(1)
			if sum[i*4+2]%2 == 0 {
				sign = -1
			}
			vec[idx] += sign
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func tokenize(text string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// piggybackBackend reuses embeddings the host coding agent may already
// compute for its own retrieval, supplied via SetLast. If none has been
// supplied recently, it degrades to keyword-only rather than blocking.
type piggybackBackend struct {
	logger   *log.Logger
	fallback Backend
	pending  chan struct {
		text string
		vec  []float32
	}
}

func newPiggybackBackend(logger *log.Logger) *piggybackBackend {
	return &piggybackBackend{logger: logger, fallback: newKeywordOnlyBackend()}
}

func (b *piggybackBackend) Name() string    { return "piggyback" }
func (b *piggybackBackend) Dimensions() int { return b.fallback.Dimensions() }

func (b *piggybackBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	// No host-supplied vector channel wired in this build; degrade
	// predictably rather than silently returning zero vectors.
	return b.fallback.Embed(ctx, text)
}

func (b *piggybackBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.fallback.EmbedBatch(ctx, texts)
}

// keywordOnlyBackend performs no vector computation. HasVectorSupport-style
// callers use its Name() to recognize this degraded mode and skip the
// vector leg of hybrid search entirely.
type keywordOnlyBackend struct{}

func newKeywordOnlyBackend() *keywordOnlyBackend { return &keywordOnlyBackend{} }

func (keywordOnlyBackend) Name() string    { return "keyword-only" }
func (keywordOnlyBackend) Dimensions() int { return 0 }

func (keywordOnlyBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding: keyword-only backend does not embed")
}

func (keywordOnlyBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding: keyword-only backend does not embed")
}
