// Package circuit implements the circuit breaker protecting remote
// layer I/O: fail fast after repeated failures instead of queueing on
// a dead dependency.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed - requests pass through
	StateClosed State = iota
	// StateOpen - requests are rejected without touching the network
	StateOpen
	// StateHalfOpen - a limited number of probe requests test recovery
	StateHalfOpen
)

// String returns string representation of state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32 `yaml:"max_failures"`

	// Cooldown is how long the circuit stays open before admitting probes
	Cooldown time.Duration `yaml:"cooldown"`

	// MaxProbes is the number of requests allowed through in half-open state
	MaxProbes uint32 `yaml:"max_probes"`

	// OnStateChange is called when the state transitions
	OnStateChange func(name string, from State, to State) `yaml:"-"`

	// IsSuccessful classifies a result; defaults to err == nil
	IsSuccessful func(err error) bool `yaml:"-"`
}

// Counts holds request outcome counters for the current state window
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

func (c *Counts) onRequest() { c.Requests++ }

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}

// Breaker implements a consecutive-failure circuit breaker
type Breaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New creates a new circuit breaker
func New(name string, config Config) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.MaxProbes == 0 {
		config.MaxProbes = 1
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = func(err error) bool { return err == nil }
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker allows it and records the outcome
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if state == StateOpen {
		return ErrOpenState
	}
	if state == StateHalfOpen && b.counts.Requests >= b.config.MaxProbes {
		return ErrTooManyProbes
	}

	b.counts.onRequest()
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if b.config.IsSuccessful(err) {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	b.counts.onSuccess()

	if state == StateHalfOpen {
		b.setState(StateClosed, now)
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	b.counts.onFailure()

	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.MaxFailures {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// currentState advances open -> half-open when the cooldown elapses
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && b.expiry.Before(now) {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.counts.clear()

	if state == StateOpen {
		b.expiry = now.Add(b.config.Cooldown)
	} else {
		b.expiry = time.Time{}
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

// State returns the current state of the breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// GetCounts returns a copy of the current counts
func (b *Breaker) GetCounts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset returns the breaker to its initial closed state
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.clear()
	b.setState(StateClosed, time.Now())
}

// Name returns the breaker's name
func (b *Breaker) Name() string {
	return b.name
}

var (
	// ErrOpenState is returned when the circuit breaker is open
	ErrOpenState = errors.New("circuit breaker is open")

	// ErrTooManyProbes is returned when half-open probe capacity is exhausted
	ErrTooManyProbes = errors.New("too many probes in half-open state")
)
