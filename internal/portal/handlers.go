package portal

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/gateway"
	"github.com/wolfeidau/edugate/internal/guard"
	"github.com/wolfeidau/edugate/internal/login"
	"github.com/wolfeidau/edugate/internal/session"
)

// Enrollment is a course the signed in user is taking.
type Enrollment struct {
	ID          string `json:"id"`
	CourseID    string `json:"courseId"`
	CourseTitle string `json:"courseTitle"`
	Progress    int    `json:"progress"`
}

// AdminStats is the summary shown to administrators.
type AdminStats struct {
	Users       int `json:"users"`
	Courses     int `json:"courses"`
	Enrollments int `json:"enrollments"`
}

type page struct {
	Title       string
	User        *session.User
	Flash       string
	Email       string
	Enrollments []Enrollment
	Stats       *AdminStats
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("failed to render template")
	}
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", page{Title: "Sign in"})
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "login.html", page{Title: "Sign in", Flash: "Invalid form submission"})
		return
	}

	email := r.PostForm.Get("email")
	password := r.PostForm.Get("password")

	if _, err := s.login.Login(r.Context(), email, password); err != nil {
		status, flash := loginFailure(err)
		log.Warn().Err(err).Str("email", email).Msg("portal login failed")
		s.render(w, status, "login.html", page{Title: "Sign in", Flash: flash, Email: email})
		return
	}

	http.Redirect(w, r, guard.DefaultDestination, http.StatusSeeOther)
}

func loginFailure(err error) (int, string) {
	var failed *gateway.RequestFailedError
	switch {
	case errors.Is(err, login.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Email or password is incorrect"
	case errors.As(err, &failed):
		return http.StatusBadGateway, failed.Message
	default:
		return http.StatusBadGateway, "Sign in is unavailable, try again later"
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.login.Logout(r.Context()); err != nil {
		log.Error().Err(err).Msg("portal logout failed")
	}
	http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := guard.UserFromContext(r.Context())
	data := page{Title: "Dashboard", User: &user}

	enrollments, err := gateway.Query[[]Enrollment](r.Context(), s.client, "/api/enrollments/me", nil, gateway.On401ReturnNull())
	switch {
	case err != nil:
		data.Flash = failureMessage(err)
	case enrollments != nil:
		data.Enrollments = *enrollments
	}

	if _, ok := s.store.Token(); !ok {
		http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
		return
	}

	s.render(w, http.StatusOK, "dashboard.html", data)
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) {
	user, _ := guard.UserFromContext(r.Context())
	data := page{Title: "Administration", User: &user}

	stats, err := gateway.Query[AdminStats](r.Context(), s.client, "/api/admin/stats", nil)
	switch {
	case errors.Is(err, gateway.ErrSessionEnded):
		http.Redirect(w, r, guard.DefaultLoginPath, http.StatusSeeOther)
		return
	case err != nil:
		data.Flash = failureMessage(err)
	default:
		data.Stats = stats
	}

	s.render(w, http.StatusOK, "admin.html", data)
}

func failureMessage(err error) string {
	var failed *gateway.RequestFailedError
	if errors.As(err, &failed) {
		return failed.Message
	}
	log.Warn().Err(err).Msg("data service request failed")
	return "The data service is unavailable"
}

type sessionStatus struct {
	Ready         bool          `json:"ready"`
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
	LastActivity  *time.Time    `json:"lastActivity,omitempty"`
	Fingerprint   string        `json:"fingerprint,omitempty"`
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()

	status := sessionStatus{
		Ready:         snap.Ready,
		Authenticated: snap.Authenticated(),
		User:          snap.User,
		Fingerprint:   session.Fingerprint(snap.Token),
	}
	if !snap.Expiry.IsZero() {
		status.ExpiresAt = &snap.Expiry
	}
	if !snap.LastActivity.IsZero() {
		status.LastActivity = &snap.LastActivity
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode session status")
	}
}
