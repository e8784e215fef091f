// Package topic implements per-project topic-shift detection over the
// running stream of embedded observations within a session.
package topic

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/laminark/laminark/internal/store"
)

const (
	windowMin     = 5
	windowMax     = 20
	thresholdMin  = 0.15
	thresholdMax  = 0.55
	ewmaAlpha     = 0.2
)

// Store is the subset of *store.Store the detector writes through.
type Store interface {
	RecordShiftDecision(ctx context.Context, d *store.ShiftDecision) error
	CreateStash(ctx context.Context, st *store.Stash) (*store.Stash, error)
	AddNotification(ctx context.Context, projectHash, text string) error
	ListObservations(ctx context.Context, filter store.ObservationFilter) ([]*store.Observation, error)
}

// Broadcaster publishes topic-shift events to subscribers.
type Broadcaster interface {
	Publish(projectHash, kind string, payload map[string]any)
}

// sessionState is the running centroid/window/threshold state for one
// session. Kept per-session rather than per-project so concurrent sessions
// in the same project never share a centroid.
type sessionState struct {
	mu        sync.Mutex
	centroid  []float32
	window    [][]float32
	threshold float64
	ewma      float64
	ewmaInit  bool
}

func newSessionState() *sessionState {
	return &sessionState{threshold: 0.3}
}

// Detector watches newly embedded observations and decides whether the
// session's topic has shifted (spec.md §4.5).
type Detector struct {
	store   Store
	bus     Broadcaster
	logger  *log.Logger
	mu      sync.Mutex
	states  map[string]*sessionState // keyed by sessionID
}

// New constructs a Detector.
func New(st Store, bus Broadcaster, logger *log.Logger) *Detector {
	return &Detector{store: st, bus: bus, logger: logger, states: map[string]*sessionState{}}
}

func (d *Detector) stateFor(sessionID string) *sessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[sessionID]
	if !ok {
		s = newSessionState()
		d.states[sessionID] = s
	}
	return s
}

// Observe runs one detection cycle for a newly embedded observation. At
// most one detection task runs per observation, and detection strictly
// follows embedding — the caller must not invoke Observe before the
// observation's vector is persisted.
func (d *Detector) Observe(ctx context.Context, projectHash string, obs *store.Observation) error {
	if len(obs.Embedding) == 0 {
		return nil
	}
	state := d.stateFor(obs.SessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if len(state.centroid) == 0 {
		state.centroid = append([]float32(nil), obs.Embedding...)
		state.window = append(state.window, obs.Embedding)
		return d.recordDecision(ctx, obs.SessionID, 0, state.threshold, false)
	}

	distance := 1 - store.CosineSimilarity(obs.Embedding, state.centroid)
	// A shift can only be declared once the window holds at least windowMin
	// vectors (spec.md §4.5's N ∈ [5, 20]): a centroid built from a
	// handful of observations is too noisy to trust for a shift decision.
	shifted := distance > state.threshold && len(state.window) >= windowMin

	if err := d.recordDecision(ctx, obs.SessionID, distance, state.threshold, shifted); err != nil {
		return err
	}

	if shifted {
		if err := d.onShift(ctx, projectHash, obs.SessionID, state); err != nil {
			return err
		}
		state.centroid = append([]float32(nil), obs.Embedding...)
		state.window = [][]float32{obs.Embedding}
		return nil
	}

	state.window = append(state.window, obs.Embedding)
	if len(state.window) > windowMax {
		state.window = state.window[len(state.window)-windowMax:]
	}
	state.centroid = meanVector(state.window)
	state.updateThreshold(distance)
	return nil
}

func (d *Detector) recordDecision(ctx context.Context, sessionID string, distance, threshold float64, shifted bool) error {
	return d.store.RecordShiftDecision(ctx, &store.ShiftDecision{
		SessionID: sessionID,
		Distance:  distance,
		Threshold: threshold,
		Shifted:   shifted,
	})
}

// updateThreshold adapts τ via EWMA of recent distances: higher-variance
// sessions raise the threshold, focused sessions lower it, bounded to
// [thresholdMin, thresholdMax] (spec.md §4.5).
func (s *sessionState) updateThreshold(distance float64) {
	if !s.ewmaInit {
		s.ewma = distance
		s.ewmaInit = true
	} else {
		s.ewma = ewmaAlpha*distance + (1-ewmaAlpha)*s.ewma
	}
	next := s.ewma * 1.8
	if next < thresholdMin {
		next = thresholdMin
	}
	if next > thresholdMax {
		next = thresholdMax
	}
	s.threshold = next
}

func (d *Detector) onShift(ctx context.Context, projectHash, sessionID string, state *sessionState) error {
	observations, err := d.store.ListObservations(ctx, store.ObservationFilter{ProjectHash: projectHash, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("topic: list observations for stash: %w", err)
	}
	if len(observations) == 0 {
		return nil
	}
	// ListObservations returns newest first; the stash narrative reads
	// oldest to newest.
	reverseObservations(observations)

	label := topicLabel(observations[0])
	summary := compressedSummary(observations)

	snapshots := make([]store.ObservationSnapshot, 0, len(observations))
	for _, o := range observations {
		snapshots = append(snapshots, store.ObservationSnapshot{
			ID:        o.ID,
			Content:   o.Content,
			Kind:      o.Kind,
			Timestamp: o.CreatedAt,
			Embedding: o.Embedding,
		})
	}

	st, err := d.store.CreateStash(ctx, &store.Stash{
		ProjectHash:          projectHash,
		SessionID:            sessionID,
		TopicLabel:           label,
		Summary:              summary,
		ObservationSnapshots: snapshots,
	})
	if err != nil {
		return fmt.Errorf("topic: create stash: %w", err)
	}

	if err := d.store.AddNotification(ctx, projectHash, fmt.Sprintf("previous context stashed as %q, use /resume to return.", st.TopicLabel)); err != nil {
		return fmt.Errorf("topic: add notification: %w", err)
	}

	if d.bus != nil {
		d.bus.Publish(projectHash, "topic_shift", map[string]any{
			"stash_id": st.ID,
			"label":    st.TopicLabel,
		})
	}
	return nil
}

// topicLabel derives a label from the oldest observation's title or a
// truncated prefix of its content, the newest-to-oldest order in
// observations being reversed by the caller for this lookup.
func topicLabel(oldest *store.Observation) string {
	if oldest.Title != "" {
		return oldest.Title
	}
	if len(oldest.Content) > 60 {
		return oldest.Content[:60] + "…"
	}
	return oldest.Content
}

// compressedSummary compresses the first three observations (oldest-first
// order assumed by the caller) into a short joined summary.
func compressedSummary(observations []*store.Observation) string {
	n := len(observations)
	if n > 3 {
		n = 3
	}
	var out string
	for i := 0; i < n; i++ {
		if i > 0 {
			out += " / "
		}
		out += topicLabel(observations[i])
	}
	return out
}

func reverseObservations(obs []*store.Observation) {
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sum := make([]float64, dims)
	for _, v := range vectors {
		for i, f := range v {
			sum[i] += float64(f)
		}
	}
	mean := make([]float32, dims)
	for i, s := range sum {
		mean[i] = float32(s / float64(len(vectors)))
	}
	return mean
}
