package align

import (
	"context"
	"sync"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/store"
)

// Writer turns accepted matches into SAME_AS edges through the store's
// merge-on-pair-key. Safe for concurrent use.
type Writer struct {
	store store.Store
	runID string

	mu      sync.Mutex
	counts  map[model.Method]int
	records []model.Match
}

func NewWriter(st store.Store, runID string) *Writer {
	return &Writer{store: st, runID: runID, counts: make(map[model.Method]int)}
}

// Write reports whether this call created the edge. An existing edge is left
// as is, whatever its method or score.
func (w *Writer) Write(ctx context.Context, m model.Match) (bool, error) {
	created, err := w.store.MergeEquivalence(ctx, model.EdgeFromMatch(m, w.runID))
	if err != nil || !created {
		return false, err
	}

	w.mu.Lock()
	w.counts[m.Method]++
	w.records = append(w.records, m)
	w.mu.Unlock()
	return true, nil
}

// Counts returns the number of edges created per method.
func (w *Writer) Counts() map[model.Method]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[model.Method]int, len(w.counts))
	for k, v := range w.counts {
		out[k] = v
	}
	return out
}

// Records returns the created decisions in completion order.
func (w *Writer) Records() []model.Match {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.Match(nil), w.records...)
}
