package pipeline

import (
	"sort"
	"sync"

	"github.com/sells-group/signal-ingest/internal/model"
)

// Tracker exposes snapshots of runs that are still in flight. The
// orchestrator registers a run when it starts and removes it when it
// reaches a terminal state; finished runs live in the store.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]func() model.PipelineRun
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]func() model.PipelineRun)}
}

// Add registers a live run under its id. snapshot must be safe to call from
// any goroutine.
func (t *Tracker) Add(id string, snapshot func() model.PipelineRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[id] = snapshot
}

// Remove drops a run from the active set.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, id)
}

// Get returns a snapshot of the live run with the given id.
func (t *Tracker) Get(id string) (model.PipelineRun, bool) {
	t.mu.RLock()
	snapshot, ok := t.runs[id]
	t.mu.RUnlock()
	if !ok {
		return model.PipelineRun{}, false
	}
	return snapshot(), true
}

// Active returns snapshots of all live runs, ordered by id for stable
// output.
func (t *Tracker) Active() []model.PipelineRun {
	t.mu.RLock()
	snapshots := make([]func() model.PipelineRun, 0, len(t.runs))
	for _, fn := range t.runs {
		snapshots = append(snapshots, fn)
	}
	t.mu.RUnlock()

	runs := make([]model.PipelineRun, 0, len(snapshots))
	for _, fn := range snapshots {
		runs = append(runs, fn())
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs
}
