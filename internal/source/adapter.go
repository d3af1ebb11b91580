// Package source turns external music clients into a stream of snapshot
// reports for the aggregator.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/jpillora/backoff"
)

// Sink receives adapter reports. The aggregator implements it.
type Sink interface {
	Submit(src domain.Source, snap domain.TrackSnapshot, err error)
}

// Adapter is one long-running source worker
type Adapter interface {
	Source() domain.Source
	// Run blocks until ctx is done
	Run(ctx context.Context) error
	Status() Status
	// Resume wakes an adapter suspended on AUTH_REQUIRED
	Resume()
}

// State is the lifecycle state of an adapter loop
type State int

const (
	StateIdle State = iota
	StateRunning
	StateBackoff
	StateAuthRequired
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateAuthRequired:
		return "auth_required"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Status is a diagnostic snapshot of an adapter
type Status struct {
	State       State
	Failures    int
	NextAttempt time.Time
}

// statusBox guards a Status shared between the loop and readers
type statusBox struct {
	mu sync.RWMutex
	st Status
}

func (b *statusBox) set(state State, failures int, next time.Time) {
	b.mu.Lock()
	b.st = Status{State: state, Failures: failures, NextAttempt: next}
	b.mu.Unlock()
}

func (b *statusBox) get() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st
}

// newBackoff returns base x 2^attempt capped at 10 x base
func newBackoff(base time.Duration) *backoff.Backoff {
	return &backoff.Backoff{
		Min:    base,
		Max:    10 * base,
		Factor: 2,
	}
}
