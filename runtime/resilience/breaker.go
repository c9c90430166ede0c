package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the position of a circuit breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// BreakerConfig configures a CircuitBreaker. Zero values fall back to the
// package defaults.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" default:"5" validate:"gte=1"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout" default:"30s" validate:"gt=0"`
}

// ErrCircuitOpen matches every *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned when a call is rejected without being
// attempted.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is open (retry after %s)", e.Name, e.RetryAfter)
}

func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// StateChangeFunc observes breaker transitions. It is called without the
// breaker lock held.
type StateChangeFunc func(name string, from, to State)

type BreakerOption func(*CircuitBreaker)

// WithBreakerClock overrides the time source, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) {
		b.now = now
	}
}

func OnStateChange(fn StateChangeFunc) BreakerOption {
	return func(b *CircuitBreaker) {
		b.onStateChange = fn
	}
}

// CircuitBreaker is a CLOSED -> OPEN -> HALF_OPEN state machine guarding a
// single integration. It counts consecutive failures; one success resets
// the count. While HALF_OPEN a single trial call is admitted at a time.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trial       bool

	now           func() time.Time
	onStateChange StateChangeFunc
}

func NewCircuitBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	b := &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CircuitBreaker) Name() string {
	return b.name
}

// Allow reports whether a call may proceed. An OPEN breaker whose reset
// timeout has elapsed moves to HALF_OPEN and admits the caller as its trial.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	from := b.state
	var err error

	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.cfg.ResetTimeout {
			err = &CircuitOpenError{Name: b.name, RetryAfter: b.cfg.ResetTimeout - elapsed}
			break
		}
		b.state = StateHalfOpen
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			err = &CircuitOpenError{Name: b.name}
			break
		}
		b.trial = true
	}

	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	b.failures = 0
	b.trial = false
	b.state = StateClosed
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.failures++
	b.lastFailure = b.now()
	b.trial = false
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Release gives back an admitted call without recording an outcome. A
// HALF_OPEN breaker stays HALF_OPEN and admits the next trial.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}

// Call runs op if the breaker allows it and records the outcome.
func (b *CircuitBreaker) Call(op func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := op(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

func (b *CircuitBreaker) notify(from, to State) {
	if from != to && b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}
