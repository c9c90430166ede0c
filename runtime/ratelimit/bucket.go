// Package ratelimit provides per-integration admission control and an
// advisory per-user abuse detector.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketConfig describes a token bucket that holds Capacity tokens and
// refills continuously at Capacity per Window. A zero config means "use the
// fallback".
type BucketConfig struct {
	Capacity int           `yaml:"capacity" json:"capacity" validate:"omitempty,gte=1"`
	Window   time.Duration `yaml:"window" json:"window" validate:"omitempty,gt=0"`
}

// DefaultBucket applies to integrations without an explicit entry.
var DefaultBucket = BucketConfig{Capacity: 100, Window: time.Minute}

// DefaultBuckets mirrors the published limits of common integrations.
var DefaultBuckets = map[string]BucketConfig{
	"slack":     {Capacity: 50, Window: time.Minute},
	"discord":   {Capacity: 50, Window: time.Second},
	"github":    {Capacity: 5000, Window: time.Hour},
	"gmail":     {Capacity: 250, Window: time.Minute},
	"sendgrid":  {Capacity: 600, Window: time.Minute},
	"notion":    {Capacity: 3, Window: time.Second},
	"trello":    {Capacity: 100, Window: 10 * time.Second},
	"openai":    {Capacity: 60, Window: time.Minute},
	"anthropic": {Capacity: 50, Window: time.Minute},
}

type LimiterOption func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter keeps one token bucket per integration name (case-insensitive).
// Buckets are created on first use and start full.
type Limiter struct {
	buckets  map[string]BucketConfig
	fallback BucketConfig
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiter builds a limiter from DefaultBuckets overlaid with overrides.
// A zero fallback uses DefaultBucket.
func NewLimiter(overrides map[string]BucketConfig, fallback BucketConfig, opts ...LimiterOption) *Limiter {
	buckets := make(map[string]BucketConfig, len(DefaultBuckets)+len(overrides))
	for name, cfg := range DefaultBuckets {
		buckets[name] = cfg
	}
	for name, cfg := range overrides {
		buckets[strings.ToLower(name)] = cfg
	}
	if fallback.Capacity <= 0 || fallback.Window <= 0 {
		fallback = DefaultBucket
	}

	l := &Limiter{
		buckets:  buckets,
		fallback: fallback,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the bucket configuration that applies to name.
func (l *Limiter) Config(name string) BucketConfig {
	if cfg, ok := l.buckets[strings.ToLower(name)]; ok && cfg.Capacity > 0 && cfg.Window > 0 {
		return cfg
	}
	return l.fallback
}

func (l *Limiter) bucket(name string) *rate.Limiter {
	key := strings.ToLower(name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	cfg := l.Config(key)
	lim := rate.NewLimiter(rate.Limit(float64(cfg.Capacity)/cfg.Window.Seconds()), cfg.Capacity)
	l.limiters[key] = lim
	return lim
}

// Check consumes one token for name, reporting false when the bucket is
// empty.
func (l *Limiter) Check(name string) bool {
	return l.bucket(name).AllowN(l.now(), 1)
}

// Wait blocks until a token for name is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, name string) error {
	lim := l.bucket(name)
	now := l.now()
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.CancelAt(l.now())
		return ctx.Err()
	}
}

// Tokens reports the tokens currently available for name.
func (l *Limiter) Tokens(name string) float64 {
	return l.bucket(name).TokensAt(l.now())
}

// BucketSnapshot is a point-in-time view of one bucket.
type BucketSnapshot struct {
	Name     string        `json:"name"`
	Tokens   float64       `json:"tokens"`
	Capacity int           `json:"capacity"`
	Window   time.Duration `json:"window"`
}

// Snapshots reports every bucket created so far.
func (l *Limiter) Snapshots() []BucketSnapshot {
	l.mu.Lock()
	names := make([]string, 0, len(l.limiters))
	for name := range l.limiters {
		names = append(names, name)
	}
	l.mu.Unlock()

	out := make([]BucketSnapshot, 0, len(names))
	for _, name := range names {
		cfg := l.Config(name)
		out = append(out, BucketSnapshot{
			Name:     name,
			Tokens:   l.Tokens(name),
			Capacity: cfg.Capacity,
			Window:   cfg.Window,
		})
	}
	return out
}
