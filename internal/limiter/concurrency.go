// Package limiter provides the admission-control primitives shared by all
// plugin fetches: a global concurrency cap and per-source token buckets.
// Both are purely gatekeeping; no record data flows through them.
package limiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrAcquireTimeout is returned when a limiter could not admit the caller
// within its configured wait timeout. It fails only the one fetch that was
// waiting, never the whole run.
var ErrAcquireTimeout = eris.New("limiter: acquire timed out")

// Concurrency caps the total number of in-flight external calls across all
// sources. Safe for concurrent use; construct once per process and inject.
type Concurrency struct {
	sem      *semaphore.Weighted
	ceiling  int64
	timeout  time.Duration
	inFlight atomic.Int64
}

// NewConcurrency creates a limiter admitting at most ceiling concurrent
// holders. Waiters that cannot be admitted within timeout receive
// ErrAcquireTimeout; a zero timeout waits until ctx is done.
func NewConcurrency(ceiling int, timeout time.Duration) *Concurrency {
	if ceiling < 1 {
		ceiling = 1
	}
	return &Concurrency{
		sem:     semaphore.NewWeighted(int64(ceiling)),
		ceiling: int64(ceiling),
		timeout: timeout,
	}
}

// Acquire blocks until a slot is free, the timeout elapses, or ctx is done.
// Every successful Acquire must be paired with Release, including on
// failure paths after the acquire.
func (c *Concurrency) Acquire(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrAcquireTimeout
		}
		return eris.Wrap(err, "limiter: acquire")
	}
	n := c.inFlight.Add(1)
	zap.L().Debug("limiter: slot acquired",
		zap.Int64("in_flight", n),
		zap.Int64("ceiling", c.ceiling),
	)
	return nil
}

// Release returns a slot to the pool.
func (c *Concurrency) Release() {
	c.inFlight.Add(-1)
	c.sem.Release(1)
}

// InFlight returns the current number of admitted holders.
func (c *Concurrency) InFlight() int {
	return int(c.inFlight.Load())
}

// Ceiling returns the configured maximum.
func (c *Concurrency) Ceiling() int {
	return int(c.ceiling)
}
