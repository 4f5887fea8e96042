// Package breaker tracks per-device wake failures and opens a circuit
// against a device that has failed too often, using a per-device failure
// map guarded by its own lock.
package breaker

import (
	"log"
	"sync"
	"time"

	"github.com/strefethen/connect-alarm-go/internal/clockwork"
)

// DefaultFailureThreshold is how many consecutive failures it takes to
// open the circuit.
const DefaultFailureThreshold = 3

// DefaultCooldown is how long an open circuit stays open before the
// orchestrator is allowed to try the primary path again.
const DefaultCooldown = 5 * time.Minute

// State is the per-device circuit breaker state, returned as a value so
// callers can't mutate breaker-internal state directly.
type State struct {
	FailureCount  int
	LastFailureAt time.Time
	IsOpen        bool
}

type deviceState struct {
	mu            sync.Mutex
	failureCount  int
	lastFailureAt time.Time
	isOpen        bool
}

// Breaker is the capability interface the orchestrator consumes.
type Breaker interface {
	ShouldBypassPrimary(deviceName string) bool
	RecordSuccess(deviceName string)
	RecordFailure(deviceName string)
	State(deviceName string) State
}

// InMemory is the process-wide CircuitBreaker: failures and successes for
// a given device are serialized by the orchestrator's own per-target
// mutex, so the per-device lock here only guards the bookkeeping against
// the concurrent reads done by status reporting.
type InMemory struct {
	threshold int
	cooldown  time.Duration
	logger    *log.Logger
	clock     clockwork.Clock

	mu      sync.Mutex
	devices map[string]*deviceState
}

// NewInMemory builds a Breaker with the given failure threshold and
// cooldown. A threshold <= 0 or cooldown <= 0 falls back to the defaults.
// A nil clock falls back to clockwork.Real{}.
func NewInMemory(threshold int, cooldown time.Duration, logger *log.Logger, clock clockwork.Clock) *InMemory {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = log.Default()
	}
	if clock == nil {
		clock = clockwork.Real{}
	}
	return &InMemory{
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger,
		clock:     clock,
		devices:   make(map[string]*deviceState),
	}
}

func (b *InMemory) getOrCreate(deviceName string) *deviceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds, ok := b.devices[deviceName]
	if !ok {
		ds = &deviceState{}
		b.devices[deviceName] = ds
	}
	return ds
}

// ShouldBypassPrimary implements Breaker: true iff the circuit is open and
// the cooldown since the last failure has not yet elapsed.
func (b *InMemory) ShouldBypassPrimary(deviceName string) bool {
	ds := b.getOrCreate(deviceName)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.isOpen {
		return false
	}
	if b.clock.Now().Sub(ds.lastFailureAt) >= b.cooldown {
		// Cooldown elapsed: half-open, let the orchestrator try the
		// primary path again. A fresh failure will reopen the circuit.
		ds.isOpen = false
		ds.failureCount = 0
		return false
	}
	return true
}

// RecordSuccess implements Breaker: resets the device's failure state.
func (b *InMemory) RecordSuccess(deviceName string) {
	ds := b.getOrCreate(deviceName)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.failureCount = 0
	ds.isOpen = false
}

// RecordFailure implements Breaker: increments the failure count and opens
// the circuit once the threshold is reached.
func (b *InMemory) RecordFailure(deviceName string) {
	ds := b.getOrCreate(deviceName)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.failureCount++
	ds.lastFailureAt = b.clock.Now()
	if ds.failureCount >= b.threshold {
		if !ds.isOpen {
			b.logger.Printf("breaker: opening circuit for %q after %d failures", deviceName, ds.failureCount)
		}
		ds.isOpen = true
	}
}

// State implements Breaker.
func (b *InMemory) State(deviceName string) State {
	ds := b.getOrCreate(deviceName)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return State{
		FailureCount:  ds.failureCount,
		LastFailureAt: ds.lastFailureAt,
		IsOpen:        ds.isOpen,
	}
}
