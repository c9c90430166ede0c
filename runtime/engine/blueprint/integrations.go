package blueprint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BDNK1/autoflow/runtime/ratelimit"
	"github.com/BDNK1/autoflow/runtime/resilience"
)

// IntegrationRegistry holds the state shared by every run that targets the
// same integration: circuit breakers, rate-limit buckets and the abuse
// detector. It is safe for concurrent use.
type IntegrationRegistry struct {
	l        *slog.Logger
	breakers *resilience.BreakerRegistry
	limiter  *ratelimit.Limiter
	abuse    *ratelimit.AbuseDetector
	retrier  *resilience.Retrier
}

type RegistryOption func(*registryOptions)

type registryOptions struct {
	clock   func() time.Time
	jitter  func() float64
	onState resilience.StateChangeFunc
}

// WithRegistryClock sets the time source of breakers, buckets and the
// abuse detector.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		o.clock = now
	}
}

func WithRetryJitter(fn func() float64) RegistryOption {
	return func(o *registryOptions) {
		o.jitter = fn
	}
}

// WithBreakerListener is notified of every breaker state transition in
// addition to the registry's own logging.
func WithBreakerListener(fn resilience.StateChangeFunc) RegistryOption {
	return func(o *registryOptions) {
		o.onState = fn
	}
}

func NewIntegrationRegistry(l *slog.Logger, cfg Config, opts ...RegistryOption) *IntegrationRegistry {
	if l == nil {
		l = slog.Default()
	}
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	breakerOpts := []resilience.BreakerOption{
		resilience.OnStateChange(func(name string, from, to resilience.State) {
			l.Warn(fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to), "integration", name)
			if o.onState != nil {
				o.onState(name, from, to)
			}
		}),
	}
	var limiterOpts []ratelimit.LimiterOption
	var detectorOpts []ratelimit.DetectorOption
	retrierOpts := []resilience.RetrierOption{resilience.WithRetryLogger(l)}
	if o.clock != nil {
		breakerOpts = append(breakerOpts, resilience.WithBreakerClock(o.clock))
		limiterOpts = append(limiterOpts, ratelimit.WithClock(o.clock))
		detectorOpts = append(detectorOpts, ratelimit.WithDetectorClock(o.clock))
	}
	if o.jitter != nil {
		retrierOpts = append(retrierOpts, resilience.WithJitterSource(o.jitter))
	}

	return &IntegrationRegistry{
		l:        l,
		breakers: resilience.NewBreakerRegistry(cfg.Breaker, breakerOpts...),
		limiter:  ratelimit.NewLimiter(cfg.RateLimits, cfg.DefaultRateLimit, limiterOpts...),
		abuse:    ratelimit.NewAbuseDetector(cfg.AbuseWindow, detectorOpts...),
		retrier:  resilience.NewRetrier(cfg.Retry, retrierOpts...),
	}
}

// Call runs op for integration on behalf of userID: the abuse detector is
// consulted (advisory), a rate-limit token is awaited, then op runs under
// retry with the integration's breaker.
func Call[T any](ctx context.Context, r *IntegrationRegistry, userID, integration, action string, op func(ctx context.Context) (T, error)) (T, error) {
	if sev := r.abuse.Record(userID, integration+"."+action); sev > ratelimit.SeverityNone {
		r.l.WarnContext(ctx, fmt.Sprintf("Unusual activity for %s.%s", integration, action),
			"user_id", userID,
			"severity", sev.String(),
			"count", r.abuse.Count(userID, integration+"."+action))
	}

	if err := r.limiter.Wait(ctx, integration); err != nil {
		var zero T
		return zero, err
	}

	return resilience.Execute(ctx, r.retrier, integration+"."+action, r.breakers.Get(integration), op)
}

func (r *IntegrationRegistry) Breaker(name string) *resilience.CircuitBreaker {
	return r.breakers.Get(name)
}

func (r *IntegrationRegistry) Limiter() *ratelimit.Limiter {
	return r.limiter
}

// IntegrationStatus combines breaker and bucket state for one integration.
type IntegrationStatus struct {
	Name        string    `json:"name"`
	Circuit     string    `json:"circuit"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	Tokens      float64   `json:"tokens"`
	Capacity    int       `json:"capacity"`
}

// Status reports every integration that has been called, sorted by name.
func (r *IntegrationRegistry) Status() []IntegrationStatus {
	byName := make(map[string]*IntegrationStatus)
	get := func(name string) *IntegrationStatus {
		s, ok := byName[name]
		if !ok {
			cfg := r.limiter.Config(name)
			s = &IntegrationStatus{
				Name:     name,
				Circuit:  resilience.StateClosed.String(),
				Tokens:   float64(cfg.Capacity),
				Capacity: cfg.Capacity,
			}
			byName[name] = s
		}
		return s
	}

	for _, b := range r.breakers.Snapshots() {
		s := get(b.Name)
		s.Circuit = b.State
		s.Failures = b.Failures
		s.LastFailure = b.LastFailure
	}
	for _, b := range r.limiter.Snapshots() {
		s := get(b.Name)
		s.Tokens = b.Tokens
		s.Capacity = b.Capacity
	}

	out := make([]IntegrationStatus, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
