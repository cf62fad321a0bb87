// Package breaker implements a per-endpoint circuit breaker table.
//
// A key is Closed until it records Threshold consecutive failures, then Open
// for Cooldown. Once the cooldown has elapsed the next attempt is let through
// (half-open): success closes the circuit, failure re-opens it immediately.
// Only one half-open attempt is in flight at a time; concurrent callers see
// ErrCircuitOpen until it is recorded or released.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while a key is tripped.
var ErrCircuitOpen = errors.New("circuit breaker open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Config struct {
	Threshold int
	Cooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{Threshold: 2, Cooldown: 60 * time.Second}
}

type entry struct {
	fails        int
	trippedUntil time.Time
	halfOpen     bool
}

// Table is safe for concurrent use by overlapping orchestration runs.
type Table struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*entry
}

type Option func(*Table)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

func New(cfg Config, opts ...Option) *Table {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	t := &Table{cfg: cfg, now: time.Now, entries: make(map[string]*entry)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow reports whether a dispatch to key may proceed. It never blocks.
func (t *Table) Allow(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	if e.halfOpen {
		return ErrCircuitOpen
	}
	if e.trippedUntil.IsZero() {
		return nil
	}
	if t.now().Before(e.trippedUntil) {
		return ErrCircuitOpen
	}
	e.trippedUntil = time.Time{}
	e.halfOpen = true
	return nil
}

func (t *Table) RecordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.fails = 0
		e.trippedUntil = time.Time{}
		e.halfOpen = false
	}
}

// Release ends an outstanding half-open attempt without recording an
// outcome, so the next Allow may try again.
func (t *Table) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok && e.halfOpen {
		e.halfOpen = false
		e.trippedUntil = t.now()
	}
}

// RecordFailure returns true when this failure tripped the circuit.
func (t *Table) RecordFailure(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.fails++
	if e.halfOpen || e.fails >= t.cfg.Threshold {
		e.trippedUntil = t.now().Add(t.cfg.Cooldown)
		e.halfOpen = false
		return true
	}
	return false
}

func (t *Table) State(key string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	switch {
	case !ok:
		return StateClosed
	case e.halfOpen:
		return StateHalfOpen
	case !e.trippedUntil.IsZero() && t.now().Before(e.trippedUntil):
		return StateOpen
	case !e.trippedUntil.IsZero():
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Failures returns the consecutive failure count for key.
func (t *Table) Failures(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e.fails
	}
	return 0
}

// Reset forgets every key.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*entry)
}
