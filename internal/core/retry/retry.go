package retry

import (
	"context"
	"time"
)

// Config controls the retry policy for a single operation.
type Config struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each subsequent
	// delay doubles, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// ShouldRetry decides whether a failure is worth retrying. Nil means
	// retry every error.
	ShouldRetry func(error) bool
}

// DefaultConfig is the policy used when callers pass a zero Config.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultConfig.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	return c
}

// Result holds the outcome of one operation in an ExecuteAll batch.
type Result[T any] struct {
	Value T
	Err   error
}

// Execute runs op, retrying transient failures with capped exponential
// backoff. The delay before attempt n+1 is min(BaseDelay*2^(n-1), MaxDelay).
// The final error is returned exactly as op produced it — retrying never
// rewraps or masks the failure. Context cancellation aborts the backoff
// sleep and returns the last operation error, or the context error if op
// never ran.
func Execute[T any](ctx context.Context, op func(context.Context) (T, error), cfg Config) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoffDelay(cfg, attempt-1)); err != nil {
				return zero, lastErr
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			break
		}
	}
	return zero, lastErr
}

// Do is Execute for operations with no result value.
func Do(ctx context.Context, op func(context.Context) error, cfg Config) error {
	_, err := Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, cfg)
	return err
}

// ExecuteAll runs each operation through Execute, in input order.
// With continueOnError=false the first operation whose retries are exhausted
// aborts the batch and its error is returned; with continueOnError=true
// every operation runs to its own resolution and the caller gets one Result
// per input, in input order.
func ExecuteAll[T any](ctx context.Context, ops []func(context.Context) (T, error), cfg Config, continueOnError bool) ([]Result[T], error) {
	results := make([]Result[T], 0, len(ops))
	for _, op := range ops {
		v, err := Execute(ctx, op, cfg)
		results = append(results, Result[T]{Value: v, Err: err})
		if err != nil && !continueOnError {
			return results, err
		}
	}
	return results, nil
}

// backoffDelay returns the delay after the given number of failures.
func backoffDelay(cfg Config, failures int) time.Duration {
	d := cfg.BaseDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if d > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return d
}

// sleep blocks the calling goroutine only; other work keeps running.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
