// Package retry runs an operation under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/repodescribe/internal/logging"
	"go.uber.org/zap"
)

// ErrExhausted is wrapped into the error returned when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps each wait.
	// Default: 2 minutes
	MaxBackoff time.Duration

	// Multiplier grows the wait after each retry.
	// Default: 2
	Multiplier float64

	// AttemptTimeout bounds each call. Zero means no per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the default policy for analysis calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	d := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.Multiplier == 0 {
		p.Multiplier = d.Multiplier
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	b := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		b *= p.Multiplier
		if b >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	if time.Duration(b) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(b)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy    Policy
	retryable func(error) bool
	sleep     Sleeper
	logger    *logging.Logger
	name      string
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the real-time wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithLogger logs retries and exhaustion under the operation name.
func WithLogger(l *logging.Logger, name string) Option {
	return func(r *Retrier) {
		r.logger = l
		r.name = name
	}
}

// New returns a Retrier that retries only errors for which retryable is true.
func New(p Policy, retryable func(error) bool, opts ...Option) *Retrier {
	p.ApplyDefaults()
	r := &Retrier{
		policy:    p,
		retryable: retryable,
		sleep:     Sleep,
		logger:    logging.NewNop(),
		name:      "operation",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. It reports how many calls were made.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := r.call(ctx, fn)
		if err == nil {
			if attempt > 1 {
				r.logger.Debug(ctx, r.name+" recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt, fmt.Errorf("%s canceled: %w", r.name, ctx.Err())
		}
		if !r.retryable(err) {
			return attempt, err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		backoff := r.policy.Backoff(attempt)
		r.logger.Debug(ctx, "retrying "+r.name,
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := r.sleep(ctx, backoff); err != nil {
			return attempt, fmt.Errorf("%s canceled: %w", r.name, err)
		}
	}

	r.logger.Warn(ctx, r.name+" failed after all retries exhausted",
		zap.Int("total_attempts", r.policy.MaxAttempts),
		zap.Duration("total_time", time.Since(start)),
		zap.Error(lastErr),
	)
	return r.policy.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return fn(ctx)
}
