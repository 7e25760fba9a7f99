package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxIdle is the idle period after which a session is destroyed.
const DefaultMaxIdle = 24 * time.Hour

// IdleMonitor periodically enforces the idle policy on a store.
type IdleMonitor struct {
	store    *Store
	maxIdle  time.Duration
	interval time.Duration
	onIdle   func()
}

// NewIdleMonitor creates a monitor. onIdle, if non-nil, is called after a
// session has been cleared for inactivity.
func NewIdleMonitor(store *Store, maxIdle, interval time.Duration, onIdle func()) *IdleMonitor {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleMonitor{
		store:    store,
		maxIdle:  maxIdle,
		interval: interval,
		onIdle:   onIdle,
	}
}

// Check runs the idle policy once.
func (m *IdleMonitor) Check() bool {
	if !m.store.EnforceIdle(m.maxIdle) {
		return false
	}
	if m.onIdle != nil {
		m.onIdle()
	}
	return true
}

// Run checks on every interval until ctx is cancelled.
func (m *IdleMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Debug().
		Dur("maxIdle", m.maxIdle).
		Dur("interval", m.interval).
		Msg("idle monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("idle monitor stopped")
			return
		case <-ticker.C:
			m.Check()
		}
	}
}
