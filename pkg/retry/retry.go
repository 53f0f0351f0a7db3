package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxStep enables linear backoff: attempt n waits n × a random step
	// in [InitialDelay, MaxStep]. Zero keeps exponential backoff.
	MaxStep time.Duration
	// RetryIf limits retries to matching errors. Nil retries every error.
	RetryIf func(error) bool
	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt uint, err error)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// LinearConfig returns a config that waits attempt × [minStep, maxStep] between attempts.
func LinearConfig(attempts uint, minStep, maxStep time.Duration) Config {
	if maxStep < minStep {
		maxStep = minStep
	}
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: minStep,
		MaxDelay:     time.Duration(attempts) * maxStep,
		MaxStep:      maxStep,
	}
}

// Do executes fn until it succeeds, the attempts run out or ctx is done.
// Only the last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.LastErrorOnly(true),
	}
	if cfg.MaxStep > 0 {
		opts = append(opts, retry.DelayType(linearDelay(cfg.InitialDelay, cfg.MaxStep)))
	} else {
		opts = append(opts, retry.DelayType(retry.BackOffDelay))
	}
	if cfg.RetryIf != nil {
		opts = append(opts, retry.RetryIf(cfg.RetryIf))
	}
	if cfg.OnRetry != nil {
		// retry-go also reports the final attempt, after which nothing is retried.
		onRetry := cfg.OnRetry
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			if cfg.MaxAttempts > 0 && n+1 >= cfg.MaxAttempts {
				return
			}
			onRetry(n, err)
		}))
	}
	return retry.Do(fn, opts...)
}

// DoWithResult executes a function with retry and returns its result
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// Unrecoverable marks err so that Do stops retrying immediately.
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}

func linearDelay(minStep, maxStep time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		step := minStep
		if spread := maxStep - minStep; spread > 0 {
			step += time.Duration(rand.Int64N(int64(spread) + 1))
		}
		return time.Duration(n+1) * step
	}
}
