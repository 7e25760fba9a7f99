package guard

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the user placed on the request by RequireSession.
func UserFromContext(ctx context.Context) (session.User, bool) {
	user, ok := ctx.Value(userContextKey).(session.User)
	return user, ok
}

const loadingPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Loading</title></head>
<body><p>Loading&hellip;</p></body></html>
`

// Middleware applies guard decisions to HTTP handlers. Redirects are written
// as 303 See Other once the decision has been made.
type Middleware struct {
	guard *Guard
}

// Middleware returns the HTTP adapter for g.
func (g *Guard) Middleware() *Middleware {
	return &Middleware{guard: g}
}

// RequireSession only lets signed in users through, and with requireAdmin only
// users holding an admin role. Authorized requests count as activity.
func (m *Middleware) RequireSession(requireAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := m.guard.EvaluateProtected(requireAdmin)
			if d.Reason == ReasonIdle {
				m.guard.store.EnforceIdle(m.guard.cfg.MaxIdle)
			}

			if d.Render != RenderChildren {
				m.write(w, r, d)
				return
			}

			m.guard.store.TouchActivity()

			ctx := r.Context()
			if d.User != nil {
				ctx = context.WithValue(ctx, userContextKey, *d.User)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PublicOnly sends signed in users to the default destination.
func (m *Middleware) PublicOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := m.guard.EvaluatePublicOnly()
			if d.Reason == ReasonIdle {
				m.guard.store.EnforceIdle(m.guard.cfg.MaxIdle)
			}
			if d.Render != RenderChildren {
				m.write(w, r, d)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) write(w http.ResponseWriter, r *http.Request, d Decision) {
	if d.Render == RenderLoading {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Refresh", "1")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(loadingPage))
		return
	}

	m.guard.metrics.GuardRedirectsTotal.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("state", d.State.String())))

	log.Debug().
		Str("path", r.URL.Path).
		Str("state", d.State.String()).
		Str("reason", string(d.Reason)).
		Str("dest", d.Redirect).
		Msg("guard redirecting")

	http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
}
