// Package circuitbreaker stops calling an optional dependency after repeated
// failures and probes it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets one probe call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the function while the breaker
// is open or a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds breaker settings. Zero values take the defaults noted below.
type Config struct {
	Name string

	// FailureThreshold consecutive failures open the breaker. Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before a probe. Default 30s.
	Cooldown time.Duration

	// OnStateChange is called under the breaker lock; keep it short.
	OnStateChange func(name string, from, to State)

	// Ignore reports errors that should not count as failures,
	// e.g. a context cancelled by the caller.
	Ignore func(error) bool

	Clock func() time.Time
}

// Breaker guards calls to one dependency.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{cfg: cfg}
}

// ForRedis returns the breaker used for best-effort Redis writes such as
// event publishing: three failures in a row open it for 30 seconds.
func ForRedis(onStateChange func(name string, from, to State)) *Breaker {
	return New(Config{
		Name:             "redis",
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		OnStateChange:    onStateChange,
		Ignore: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
}

// Execute calls fn unless the breaker is open and records the result.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Clock().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || (b.cfg.Ignore != nil && b.cfg.Ignore(err)) {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.cfg.Clock()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to != StateOpen {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has passed
// still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the configured name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}
