// Package navigate provides the "go somewhere else" capability used by the
// request gateway and route guard. Callers inject a Navigator instead of
// reaching for process-wide redirect state.
package navigate

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Navigator moves the user to dest.
type Navigator interface {
	Navigate(dest string)
}

// Func adapts a function to a Navigator.
type Func func(dest string)

// Navigate implements Navigator.
func (f Func) Navigate(dest string) { f(dest) }

// Discard ignores every navigation request.
var Discard Navigator = Func(func(string) {})

// Once forwards only the first navigation until Reset is called. Concurrent
// 401 responses all ask for the login page; the user only needs to get
// there once.
type Once struct {
	next  Navigator
	fired atomic.Bool
}

// NewOnce wraps next.
func NewOnce(next Navigator) *Once {
	return &Once{next: next}
}

// Navigate implements Navigator.
func (o *Once) Navigate(dest string) {
	if !o.fired.CompareAndSwap(false, true) {
		log.Debug().Str("dest", dest).Msg("navigation already requested")
		return
	}
	o.next.Navigate(dest)
}

// Reset re-arms the navigator, typically after a new session is stored.
func (o *Once) Reset() {
	o.fired.Store(false)
}

// Recorder remembers every destination it was asked to navigate to.
type Recorder struct {
	mu    sync.Mutex
	dests []string
}

// Navigate implements Navigator.
func (r *Recorder) Navigate(dest string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dests = append(r.dests, dest)
}

// Destinations returns a copy of the recorded destinations in order.
func (r *Recorder) Destinations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dests...)
}

// Last returns the most recent destination.
func (r *Recorder) Last() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dests) == 0 {
		return "", false
	}
	return r.dests[len(r.dests)-1], true
}

// Take returns the most recent destination and forgets all of them.
func (r *Recorder) Take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dests) == 0 {
		return "", false
	}
	last := r.dests[len(r.dests)-1]
	r.dests = nil
	return last, true
}
