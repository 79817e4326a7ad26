// Package breaker implements the circuit breaker shared by the error
// recovery and database recovery services.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is open and the retry
// window has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker tri-state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls breaker behavior.
type Config struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// DefaultConfig matches the service defaults: open after 5 consecutive
// failures, probe again after 60s.
var DefaultConfig = Config{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
}

// Snapshot is a point-in-time view of a breaker, safe to serialize.
type Snapshot struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	Threshold   int       `json:"threshold"`
	Successes   int64     `json:"successes"`
	Total       int64     `json:"total"`
	NextAttempt time.Time `json:"next_attempt,omitempty"`
}

// Breaker is a single circuit breaker. Transitions:
// closed -> open on threshold consecutive failures; open -> half_open once
// RecoveryTimeout elapses (evaluated in Allow); half_open -> closed on
// success, half_open -> open on failure.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	successes   int64
	total       int64
	nextAttempt time.Time
	now         func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// until the recovery timeout elapses, at which point the breaker moves to
// half_open and exactly this call is let through as the probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	switch b.state {
	case StateOpen:
		if b.now().Before(b.nextAttempt) {
			return ErrOpen
		}
		b.state = StateHalfOpen
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker (from half_open) and resets the failure
// count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.failures = 0
	b.state = StateClosed
}

// RecordFailure counts a failure, opening the breaker when the threshold is
// reached or when a half_open probe fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.nextAttempt = b.now().Add(b.cfg.RecoveryTimeout)
	}
}

// RetryAfter returns how long until the next probe is allowed. Zero when
// the breaker is not open.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return 0
	}
	remaining := b.nextAttempt.Sub(b.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:     b.state,
		Failures:  b.failures,
		Threshold: b.cfg.FailureThreshold,
		Successes: b.successes,
		Total:     b.total,
	}
	if b.state == StateOpen {
		s.NextAttempt = b.nextAttempt
	}
	return s
}
