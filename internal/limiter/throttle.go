package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bucket is a token-bucket shape: capacity Burst, refilled at RatePerSec.
type Bucket struct {
	RatePerSec float64
	Burst      int
}

// SourceThrottle rate-limits calls per source name with one token bucket
// per source. Buckets are created lazily on first acquire, using a
// per-source override when configured and the default bucket otherwise.
// Tokens regenerate over time; there is no explicit release.
type SourceThrottle struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	defaults  Bucket
	overrides map[string]Bucket
	timeout   time.Duration
}

// NewSourceThrottle creates a throttle with the given default bucket and
// optional per-source overrides. Waiters exceeding timeout receive
// ErrAcquireTimeout.
func NewSourceThrottle(defaults Bucket, overrides map[string]Bucket, timeout time.Duration) *SourceThrottle {
	if defaults.RatePerSec <= 0 {
		defaults.RatePerSec = 1
	}
	if defaults.Burst < 1 {
		defaults.Burst = 1
	}
	return &SourceThrottle{
		limiters:  make(map[string]*rate.Limiter),
		defaults:  defaults,
		overrides: overrides,
		timeout:   timeout,
	}
}

// Acquire consumes one token for the named source, blocking until a token
// is available, the timeout elapses, or ctx is done. The bucket never holds
// more than its burst capacity, even after long idle periods — rate.Limiter
// caps the token count on refill.
func (s *SourceThrottle) Acquire(ctx context.Context, source string) error {
	lim := s.limiter(source)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := lim.Wait(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			zap.L().Warn("limiter: source throttle timed out", zap.String("source", source))
			return ErrAcquireTimeout
		}
		return eris.Wrapf(err, "limiter: throttle %s", source)
	}
	return nil
}

// Tokens reports the tokens currently available for the named source.
func (s *SourceThrottle) Tokens(source string) float64 {
	return s.limiter(source).Tokens()
}

func (s *SourceThrottle) limiter(source string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lim, ok := s.limiters[source]; ok {
		return lim
	}
	b := s.defaults
	if o, ok := s.overrides[source]; ok {
		if o.RatePerSec > 0 {
			b.RatePerSec = o.RatePerSec
		}
		if o.Burst > 0 {
			b.Burst = o.Burst
		}
	}
	lim := rate.NewLimiter(rate.Limit(b.RatePerSec), b.Burst)
	s.limiters[source] = lim
	zap.L().Debug("limiter: bucket created",
		zap.String("source", source),
		zap.Float64("rate_per_sec", b.RatePerSec),
		zap.Int("burst", b.Burst),
	)
	return lim
}
