package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryConfig configures exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts" default:"3" validate:"gte=1,lte=20"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay" default:"1s" validate:"gte=0"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay" default:"10s" validate:"gte=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" default:"2" validate:"gte=1"`
	Jitter            bool          `yaml:"jitter" json:"jitter" default:"true"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		BaseDelay:         DefaultBaseDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Jitter:            true,
	}
}

// RetryExhaustedError reports that every attempt failed. Err is the error
// from the final attempt.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err may succeed on a later attempt. Errors
// may opt out by implementing Retryable() bool.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// interrupted reports whether err comes from the caller giving up (the run
// was cancelled or hit its deadline) rather than from the integration.
// Those outcomes say nothing about the integration's health.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

type RetrierOption func(*Retrier)

func WithRetryLogger(l *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		r.l = l
	}
}

// WithJitterSource replaces the uniform [0,1) source used for jitter.
func WithJitterSource(fn func() float64) RetrierOption {
	return func(r *Retrier) {
		r.random = fn
	}
}

// Retrier computes retry delays and drives retry loops.
type Retrier struct {
	cfg    RetryConfig
	l      *slog.Logger
	random func() float64
}

func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	r := &Retrier{
		cfg:    cfg,
		l:      slog.Default(),
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

// Delay returns the wait after the given failed attempt (1-based):
// min(MaxDelay, BaseDelay * Multiplier^(attempt-1)), scaled into
// [0.5, 1.0] of itself when jitter is enabled.
func (r *Retrier) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter {
		d *= 0.5 + 0.5*r.random()
	}
	return time.Duration(d)
}

// attemptBackOff adapts Retrier.Delay to backoff.BackOff.
type attemptBackOff struct {
	r       *Retrier
	attempt int
}

func (b *attemptBackOff) Reset() {
	b.attempt = 0
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.r.Delay(b.attempt)
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. When breaker is non-nil every attempt passes
// through it; an open breaker fails fast with *CircuitOpenError.
func Execute[T any](ctx context.Context, r *Retrier, name string, breaker *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	var lastErr error

	operation := func() (T, error) {
		var zero T
		attempts++

		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				lastErr = err
				return zero, backoff.Permanent(err)
			}
		}

		result, err := op(ctx)
		if breaker != nil {
			switch {
			case err == nil:
				breaker.RecordSuccess()
			case interrupted(ctx, err):
				breaker.Release()
			default:
				breaker.RecordFailure()
			}
		}
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		return result, nil
	}

	notify := func(err error, next time.Duration) {
		r.l.WarnContext(ctx, fmt.Sprintf("Attempt %d/%d of %s failed, retrying", attempts, r.cfg.MaxAttempts, name),
			"error", err,
			"delay", next)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&attemptBackOff{r: r}),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, err
	}
	if lastErr != nil && !IsRetryable(lastErr) {
		return result, lastErr
	}
	return result, &RetryExhaustedError{Operation: name, Attempts: attempts, Err: lastErr}
}
