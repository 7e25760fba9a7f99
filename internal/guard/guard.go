// Package guard decides what a protected or public-only view may render given
// the current session, and schedules the redirect when it may not.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/navigate"
	"github.com/wolfeidau/edugate/internal/session"
	"github.com/wolfeidau/edugate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultLoginPath   = "/login"
	DefaultDestination = "/dashboard"
)

// State is the outcome of evaluating a route.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateInsufficientRole
	StateAuthorized
	// StateAuthenticated is the public-only outcome for a signed in user.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInsufficientRole:
		return "insufficient-role"
	case StateAuthorized:
		return "authorized"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Render is what the view shows for a decision.
type Render int

const (
	RenderNothing Render = iota
	RenderLoading
	RenderChildren
)

func (r Render) String() string {
	switch r {
	case RenderLoading:
		return "loading"
	case RenderChildren:
		return "children"
	default:
		return "nothing"
	}
}

// Reason explains an unauthenticated decision.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNoSession Reason = "no-session"
	ReasonExpired   Reason = "expired"
	ReasonIdle      Reason = "idle"
)

// Decision is the render outcome plus the redirect, if one is due.
type Decision struct {
	State    State
	Render   Render
	Redirect string
	Reason   Reason
	User     *session.User
}

// Config controls a Guard.
type Config struct {
	LoginPath   string
	Destination string
	AdminRoles  []string
	MaxIdle     time.Duration
}

// Guard evaluates routes against a session store.
type Guard struct {
	store     *session.Store
	nav       navigate.Navigator
	scheduler Scheduler
	cfg       Config
	metrics   *telemetry.Metrics
}

// New creates a guard. A nil scheduler runs redirects on their own goroutine.
func New(store *session.Store, nav navigate.Navigator, scheduler Scheduler, cfg Config) *Guard {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.Destination == "" {
		cfg.Destination = DefaultDestination
	}
	if len(cfg.AdminRoles) == 0 {
		cfg.AdminRoles = session.DefaultAdminRoles
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = session.DefaultMaxIdle
	}
	if scheduler == nil {
		scheduler = GoScheduler{}
	}
	if nav == nil {
		nav = navigate.Discard
	}

	return &Guard{
		store:     store,
		nav:       nav,
		scheduler: scheduler,
		cfg:       cfg,
		metrics:   telemetry.GetMetrics(),
	}
}

// EvaluateProtected computes the decision for a protected view without any
// side effects.
func (g *Guard) EvaluateProtected(requireAdmin bool) Decision {
	snap := g.store.Snapshot()

	if !snap.Ready {
		return Decision{State: StateLoading, Render: RenderLoading}
	}

	if reason := g.unauthenticated(snap); reason != ReasonNone {
		return Decision{
			State:    StateUnauthenticated,
			Render:   RenderNothing,
			Redirect: g.cfg.LoginPath,
			Reason:   reason,
		}
	}

	if requireAdmin && (snap.User == nil || !snap.User.HasRole(g.cfg.AdminRoles...)) {
		return Decision{
			State:    StateInsufficientRole,
			Render:   RenderNothing,
			Redirect: g.cfg.Destination,
			User:     snap.User,
		}
	}

	return Decision{State: StateAuthorized, Render: RenderChildren, User: snap.User}
}

// EvaluatePublicOnly computes the decision for a public-only view without any
// side effects.
func (g *Guard) EvaluatePublicOnly() Decision {
	snap := g.store.Snapshot()

	if !snap.Ready {
		return Decision{State: StateLoading, Render: RenderLoading}
	}

	reason := g.unauthenticated(snap)
	if reason == ReasonNone {
		return Decision{
			State:    StateAuthenticated,
			Render:   RenderNothing,
			Redirect: g.cfg.Destination,
			User:     snap.User,
		}
	}

	return Decision{State: StateUnauthenticated, Render: RenderChildren, Reason: reason}
}

// Protected evaluates a protected view. An idle session is destroyed and any
// redirect is handed to the scheduler.
func (g *Guard) Protected(requireAdmin bool) Decision {
	d := g.EvaluateProtected(requireAdmin)
	g.settle(d)
	return d
}

// PublicOnly evaluates a view that only signed out users may see.
func (g *Guard) PublicOnly() Decision {
	d := g.EvaluatePublicOnly()
	g.settle(d)
	return d
}

func (g *Guard) settle(d Decision) {
	if d.Reason == ReasonIdle {
		g.store.EnforceIdle(g.cfg.MaxIdle)
	}

	if d.Redirect == "" {
		return
	}

	g.metrics.GuardRedirectsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("state", d.State.String())))

	dest := d.Redirect
	g.scheduler.Schedule(func() {
		log.Debug().Str("dest", dest).Msg("guard redirect")
		g.nav.Navigate(dest)
	})
}

func (g *Guard) unauthenticated(snap session.Snapshot) Reason {
	switch {
	case snap.Token == "":
		return ReasonNoSession
	case snap.Expired:
		return ReasonExpired
	case g.store.IsInactive(g.cfg.MaxIdle):
		return ReasonIdle
	default:
		return ReasonNone
	}
}

// Watch calls fn with a fresh decision now and after every session change
// until ctx is cancelled. Changes that arrive while fn runs are coalesced.
func (g *Guard) Watch(ctx context.Context, evaluate func() Decision, fn func(Decision)) {
	changed := make(chan struct{}, 1)

	unsubscribe := g.store.Subscribe(func(session.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	fn(evaluate())

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			fn(evaluate())
		}
	}
}

// Scheduler runs deferred effects after the current evaluation.
type Scheduler interface {
	Schedule(fn func())
}

// GoScheduler runs each effect on its own goroutine.
type GoScheduler struct{}

// Schedule implements Scheduler.
func (GoScheduler) Schedule(fn func()) { go fn() }

// ManualScheduler queues effects until Flush.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

// Schedule implements Scheduler.
func (m *ManualScheduler) Schedule(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
}

// Pending returns the number of queued effects.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush runs every queued effect in order and returns how many ran.
func (m *ManualScheduler) Flush() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}
