// Package portal serves a small web UI over the session, gateway and guard.
package portal

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/gateway"
	"github.com/wolfeidau/edugate/internal/guard"
	httpmiddleware "github.com/wolfeidau/edugate/internal/http"
	"github.com/wolfeidau/edugate/internal/login"
	"github.com/wolfeidau/edugate/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config controls the portal.
type Config struct {
	// CORSOrigins may call /api/* from a browser.
	CORSOrigins []string
	// MaxIdle and IdleInterval drive the background idle monitor.
	MaxIdle      time.Duration
	IdleInterval time.Duration
}

// Server wires the portal routes.
type Server struct {
	store  *session.Store
	client *gateway.Client
	login  *login.Service
	guard  *guard.Guard
	cfg    Config
	tmpl   *template.Template
}

func New(store *session.Store, client *gateway.Client, loginSvc *login.Service, g *guard.Guard, cfg Config) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		store:  store,
		client: client,
		login:  loginSvc,
		guard:  g,
		cfg:    cfg,
		tmpl:   tmpl,
	}, nil
}

// Handler returns the portal with CSRF protection on HTML routes and CORS on
// /api/* routes.
func (s *Server) Handler() http.Handler {
	mw := s.guard.Middleware()

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", http.RedirectHandler(guard.DefaultDestination, http.StatusSeeOther))
	mux.Handle("GET /login", mw.PublicOnly()(http.HandlerFunc(s.loginForm)))
	mux.Handle("POST /login", mw.PublicOnly()(http.HandlerFunc(s.loginSubmit)))
	mux.Handle("POST /logout", http.HandlerFunc(s.logout))
	mux.Handle("GET /dashboard", mw.RequireSession(false)(http.HandlerFunc(s.dashboard)))
	mux.Handle("GET /admin", mw.RequireSession(true)(http.HandlerFunc(s.admin)))
	mux.Handle("GET /api/session", http.HandlerFunc(s.sessionStatus))

	protection := csrf.New()
	withCORS := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(mux)
	protected := protection.Handler(mux)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			withCORS.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})

	return httpmiddleware.RequestLogger(log.Logger)(handler)
}

// Run serves on addr until ctx is cancelled, enforcing the idle policy in the
// background.
func (s *Server) Run(ctx context.Context, addr string) error {
	monitor := session.NewIdleMonitor(s.store, s.cfg.MaxIdle, s.cfg.IdleInterval, func() {
		log.Info().Msg("session cleared after inactivity")
	})
	go monitor.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("portal listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("portal shutting down")
	return srv.Shutdown(shutdownCtx)
}

func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
