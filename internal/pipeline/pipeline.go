// Package pipeline orchestrates one ingestion run: fan out to the source
// plugins under the concurrency and rate limits, join the fetched records,
// filter them for relevance, and hand the survivors to the store.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/signal-ingest/internal/config"
	"github.com/sells-group/signal-ingest/internal/filter"
	"github.com/sells-group/signal-ingest/internal/limiter"
	"github.com/sells-group/signal-ingest/internal/model"
	"github.com/sells-group/signal-ingest/internal/plugin"
	"github.com/sells-group/signal-ingest/internal/store"
)

// Orchestrator drives the fetch, filter and persist phases of a run.
type Orchestrator struct {
	cfg      *config.Config
	registry *plugin.Registry
	global   *limiter.Concurrency
	throttle *limiter.SourceThrottle
	filter   *filter.Engine
	store    store.Store
	tracker  *Tracker
}

// New creates an Orchestrator with all dependencies.
func New(
	cfg *config.Config,
	registry *plugin.Registry,
	global *limiter.Concurrency,
	throttle *limiter.SourceThrottle,
	filterEngine *filter.Engine,
	st store.Store,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		global:   global,
		throttle: throttle,
		filter:   filterEngine,
		store:    st,
		tracker:  NewTracker(),
	}
}

// Tracker returns the live-run tracker for this orchestrator.
func (o *Orchestrator) Tracker() *Tracker {
	return o.tracker
}

// Run executes one ingestion run for the target. The returned run is always
// non-nil once plugins have been resolved, so callers can inspect counts and
// per-plugin errors even when err is set. since, when non-nil, drops records
// published before it.
func (o *Orchestrator) Run(ctx context.Context, target model.CompanyTarget, since *time.Time) (*model.PipelineRun, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("company", target.Name))

	names := o.enabledSources()
	run := &model.PipelineRun{
		ID:        uuid.New().String(),
		Target:    target,
		State:     model.RunStatePending,
		StartedAt: time.Now().UTC(),
		Plugins:   names,
	}

	// All mutation of run happens under mu; the tracker hands out snapshots.
	var mu sync.Mutex
	o.tracker.Add(run.ID, func() model.PipelineRun {
		mu.Lock()
		defer mu.Unlock()
		return run.Snapshot()
	})
	defer o.tracker.Remove(run.ID)

	plugins, err := o.registry.Resolve(names)
	if err != nil {
		o.finalize(ctx, run, &mu, model.RunStateFailed)
		return run, eris.Wrap(err, "pipeline: resolve plugins")
	}

	mu.Lock()
	run.State = model.RunStateFetching
	mu.Unlock()
	log.Info("pipeline: fetching", zap.Strings("plugins", names))

	// One slot per plugin keeps the joined output in resolution order no
	// matter which fetch finishes first.
	fetched := make([][]model.RawRecord, len(plugins))
	var succeeded int
	var aborted bool

	g := &errgroup.Group{}
	for i, p := range plugins {
		g.Go(func() error {
			records, fetchErr := o.fetchOne(ctx, p, target, since)

			mu.Lock()
			defer mu.Unlock()
			if fetchErr != nil {
				// A fetch cut short by the caller marks the run cancelled,
				// as opposed to an ordinary plugin failure.
				if errors.Is(fetchErr, context.Canceled) {
					aborted = true
				}
				run.PluginErrors = append(run.PluginErrors, model.PluginError{
					Plugin: p.Name(),
					Error:  fetchErr.Error(),
				})
				return nil
			}
			fetched[i] = records
			run.Fetched += len(records)
			succeeded++
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	run.State = model.RunStateFiltering
	var all []model.RawRecord
	for _, records := range fetched {
		all = append(all, records...)
	}
	// Cancellation only demotes the run when a fetch was actually cut short;
	// a cancel that lands after every fetch has settled changes nothing.
	cancelled := aborted
	mu.Unlock()

	var accepted []model.ScoredRecord
	var stats filter.Stats
	if len(all) > 0 {
		// Records that settled before a cancel are still scored and
		// persisted; filtering runs detached from the dead context.
		filterCtx := ctx
		if cancelled {
			var cancelFilter context.CancelFunc
			filterCtx, cancelFilter = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Limits.FetchTimeout())
			defer cancelFilter()
		}
		var filterErr error
		accepted, stats, filterErr = o.filter.Filter(filterCtx, all, o.referenceQuery(target))
		if filterErr != nil {
			// An unusable scoring backend fails the phase, not the run:
			// every candidate is tallied as failed and the run finalizes
			// on the fetch outcome alone.
			log.Warn("pipeline: filtering failed", zap.Error(filterErr))
			mu.Lock()
			run.PluginErrors = append(run.PluginErrors, model.PluginError{
				Plugin: "filter",
				Error:  filterErr.Error(),
			})
			mu.Unlock()
			accepted = nil
			stats = filter.Stats{Failed: len(all)}
		}
	}

	mu.Lock()
	run.Accepted = stats.Accepted
	run.Rejected = stats.Rejected
	run.Failed = stats.Failed
	mu.Unlock()

	// Persist the accepted set exactly once per run, surviving caller
	// cancellation. A store failure is recorded on the run but does not
	// change its outcome.
	if persistErr := o.store.SaveRecords(context.WithoutCancel(ctx), run.ID, target, accepted); persistErr != nil {
		log.Warn("pipeline: persist records failed", zap.Error(persistErr))
		mu.Lock()
		run.PersistError = persistErr.Error()
		mu.Unlock()
	}

	final := model.RunStateCompleted
	if cancelled || succeeded == 0 {
		final = model.RunStatePartiallyFailed
	}
	o.finalize(ctx, run, &mu, final)

	log.Info("pipeline: run finished",
		zap.String("run_id", run.ID),
		zap.String("state", string(final)),
		zap.Int("fetched", run.Fetched),
		zap.Int("accepted", run.Accepted),
		zap.Int("rejected", run.Rejected),
		zap.Int("failed", run.Failed),
	)
	return run, nil
}

// fetchOne runs a single plugin fetch under the global ceiling and the
// per-source throttle. Sibling failures never cancel each other; only the
// caller's context stops work early.
func (o *Orchestrator) fetchOne(ctx context.Context, p plugin.Plugin, target model.CompanyTarget, since *time.Time) ([]model.RawRecord, error) {
	// No new fetches once the run is cancelled.
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s not started", p.Name())
	}

	if err := o.global.Acquire(ctx); err != nil {
		return nil, eris.Wrapf(err, "pipeline: global limit for %s", p.Name())
	}
	defer o.global.Release()

	if err := o.throttle.Acquire(ctx, p.Name()); err != nil {
		return nil, eris.Wrapf(err, "pipeline: throttle for %s", p.Name())
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.Limits.FetchTimeout())
	defer cancel()

	start := time.Now()
	records, err := p.Fetch(fetchCtx, target, since)
	if err != nil {
		zap.L().Error("pipeline: fetch failed",
			zap.String("plugin", p.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	zap.L().Debug("pipeline: fetch complete",
		zap.String("plugin", p.Name()),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return records, nil
}

// finalize freezes the run in its terminal state and persists the snapshot.
func (o *Orchestrator) finalize(ctx context.Context, run *model.PipelineRun, mu *sync.Mutex, state model.RunState) {
	mu.Lock()
	now := time.Now().UTC()
	run.State = state
	run.CompletedAt = &now
	snapshot := run.Snapshot()
	mu.Unlock()

	if err := o.store.SaveRun(context.WithoutCancel(ctx), &snapshot); err != nil {
		zap.L().Warn("pipeline: persist run failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
}

// enabledSources returns the names of the configured sources that are
// switched on, in configuration order.
func (o *Orchestrator) enabledSources() []string {
	var names []string
	for _, src := range o.cfg.Sources {
		if src.Enabled {
			names = append(names, src.Name)
		}
	}
	return names
}

// referenceQuery builds the text the fetched records are scored against:
// the target's identity plus the configured context keywords.
func (o *Orchestrator) referenceQuery(target model.CompanyTarget) string {
	parts := []string{target.Name}
	if target.Domain != "" {
		parts = append(parts, target.Domain)
	}
	if target.Industry != "" {
		parts = append(parts, target.Industry)
	}
	parts = append(parts, target.Aliases...)
	parts = append(parts, o.cfg.Filter.ContextKeywords...)
	return strings.Join(parts, " ")
}
