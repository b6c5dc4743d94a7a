// Package resilience provides the per-host circuit breaker the network
// capability uses so one failing site cannot keep burning request budget
// for every script that targets it.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures breaker behavior.
type Settings struct {
	// MaxFailures is the consecutive-failure count that trips the breaker.
	MaxFailures uint32
	// Cooldown is the open-state period before a half-open probe.
	Cooldown time.Duration
	// ProbeSuccesses is how many half-open successes close the breaker.
	ProbeSuccesses uint32
}

// DefaultSettings tolerates flaky book-source sites: they vary wildly in
// reliability, so the breaker only trips on a sustained failure run.
func DefaultSettings() Settings {
	return Settings{
		MaxFailures:    8,
		Cooldown:       30 * time.Second,
		ProbeSuccesses: 2,
	}
}

// Breaker implements a minimal three-state circuit breaker.
type Breaker struct {
	settings Settings

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
}

// New creates a breaker with the given settings.
func New(settings Settings) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 8
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.ProbeSuccesses == 0 {
		settings.ProbeSuccesses = 1
	}
	return &Breaker{settings: settings}
}

// Allow reports whether a request may proceed, transitioning from open to
// half-open when the cooldown has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.settings.Cooldown {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	return nil
}

// Record notes the outcome of a request that Allow admitted.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.settings.ProbeSuccesses {
				b.state = StateClosed
				b.failures = 0
			}
		default:
			b.failures = 0
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.trip()
	default:
		b.failures++
		if b.failures >= b.settings.MaxFailures {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.failures = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// HostSet lazily maintains one breaker per remote host.
type HostSet struct {
	settings Settings
	breakers sync.Map // host -> *Breaker
}

// NewHostSet creates a per-host breaker registry.
func NewHostSet(settings Settings) *HostSet {
	return &HostSet{settings: settings}
}

// For returns the breaker for a host, creating it on first use.
func (h *HostSet) For(host string) *Breaker {
	if b, ok := h.breakers.Load(host); ok {
		return b.(*Breaker)
	}
	b, _ := h.breakers.LoadOrStore(host, New(h.settings))
	return b.(*Breaker)
}
