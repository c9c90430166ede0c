package resilience

import (
	"sort"
	"strings"
	"sync"
)

// BreakerRegistry hands out one CircuitBreaker per integration name. Names
// are case-insensitive. Breakers live for the lifetime of the registry and
// are shared by every run that targets the same integration.
type BreakerRegistry struct {
	cfg  BreakerConfig
	opts []BreakerOption

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

func NewBreakerRegistry(cfg BreakerConfig, opts ...BreakerOption) *BreakerRegistry {
	return &BreakerRegistry{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	key := strings.ToLower(name)

	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewCircuitBreaker(key, r.cfg, r.opts...)
	r.breakers[key] = b
	return b
}

// Snapshots returns the state of every breaker created so far, sorted by name.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.RLock()
	out := make([]BreakerSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
