// Package retry re-runs store operations that hit lock contention.
//
// The policy is an explicit value handed to an Executor; there is no
// process-wide retry state. Each attempt of an operation owns a fresh
// transaction, so a retried attempt never sees the partial work of a
// failed one.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/metrics"
	"github.com/roach88/renshi/internal/store"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 500 * time.Millisecond
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Retryable reports whether an error is transient.
	Retryable func(error) bool
}

// DefaultPolicy retries contention three times with a 500ms pause.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Retryable:   store.IsContention,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Retryable == nil {
		p.Retryable = store.IsContention
	}
	return p
}

// Executor runs operations under a Policy.
type Executor struct {
	policy  Policy
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithMetrics records retry counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an Executor. Zero policy fields fall back to safe values:
// one attempt, no delay, store.IsContention.
func New(p Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: p.normalized(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's effective policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Run calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Exhaustion yields a KindRetryExhausted error
// wrapping the last failure.
func (e *Executor) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fault.Wrap(fault.KindInternal, op, "操作已取消", err)
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !e.policy.Retryable(last) {
			return last
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		e.logger.Warn("retrying after contention",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Duration("delay", e.policy.Delay),
			zap.Error(last),
		)
		if e.metrics != nil {
			e.metrics.RetryAttempts.WithLabelValues(op).Inc()
		}

		if err := wait(ctx, e.policy.Delay); err != nil {
			return fault.Wrap(fault.KindInternal, op, "操作已取消", err)
		}
	}

	e.logger.Error("retry budget exhausted",
		zap.String("op", op),
		zap.Int("attempts", e.policy.MaxAttempts),
		zap.Error(last),
	)
	if e.metrics != nil {
		e.metrics.RetryExhausted.WithLabelValues(op).Inc()
	}
	return fault.Wrap(fault.KindRetryExhausted, op,
		"数据库繁忙，多次重试后仍失败，请稍后再试！",
		fmt.Errorf("after %d attempts: %w", e.policy.MaxAttempts, last))
}

// Do is Run for operations that produce a value. The value of the last
// attempt is discarded unless it succeeded.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Run(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
