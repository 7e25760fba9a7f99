package login

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/edugate/internal/gateway"
	"github.com/wolfeidau/edugate/internal/guard"
	"github.com/wolfeidau/edugate/internal/navigate"
	"github.com/wolfeidau/edugate/internal/session"
	"github.com/wolfeidau/edugate/internal/session/sessiontest"
)

var student = session.User{ID: "u-1", Name: "Test Student", Role: "student", Email: "student@example.com"}

func newService(t *testing.T, mux *http.ServeMux) (*Service, *session.Store) {
	return newServiceWithTimeout(t, mux, 0)
}

func newServiceWithTimeout(t *testing.T, mux *http.ServeMux, timeout time.Duration) (*Service, *session.Store) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := session.NewStore(session.NewMemoryArea())
	require.NoError(t, store.Load(context.Background()))

	client, err := gateway.New(store, navigate.Discard, gateway.Config{BaseURL: srv.URL, Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return New(client, store, Config{ClientID: "edugate-cli"}), store
}

func passwordHandler(t *testing.T, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		if creds.Email != student.Email || creds.Password != "correct horse" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}

		_ = json.NewEncoder(w).Encode(Result{Token: token, User: student})
	}
}

func TestLogin(t *testing.T) {
	token := sessiontest.Token(t, student.ID, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultLoginPath, passwordHandler(t, token))

	t.Run("valid credentials store session", func(t *testing.T) {
		svc, store := newService(t, mux)

		user, err := svc.Login(context.Background(), student.Email, "correct horse")
		require.NoError(t, err)
		assert.Equal(t, student, user)

		got, ok := store.Token()
		require.True(t, ok)
		assert.Equal(t, token, got)

		// a protected route now renders its children
		sched := &guard.ManualScheduler{}
		g := guard.New(store, navigate.Discard, sched, guard.Config{})
		d := g.Protected(false)
		assert.Equal(t, guard.RenderChildren, d.Render)
		assert.Zero(t, sched.Pending())
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, store := newService(t, mux)

		_, err := svc.Login(context.Background(), student.Email, "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, ok := store.Token()
		assert.False(t, ok)
	})
}

func TestLogin_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultLoginPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	})

	svc, _ := newService(t, mux)

	_, err := svc.Login(context.Background(), student.Email, "correct horse")

	var failed *gateway.RequestFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusInternalServerError, failed.Status)
	assert.Equal(t, "database unavailable", failed.Message)
}

func TestLogin_MalformedToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultLoginPath, passwordHandler(t, "not-a-jwt"))

	svc, store := newService(t, mux)

	_, err := svc.Login(context.Background(), student.Email, "correct horse")
	require.ErrorIs(t, err, session.ErrMalformedToken)

	_, ok := store.User()
	assert.False(t, ok)
}

func TestOAuthLogin(t *testing.T) {
	access := sessiontest.Token(t, student.ID, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultTokenPath, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))

		if r.PostForm.Get("password") != "correct horse" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"token_type":    "Bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET "+DefaultProfilePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+access {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(student)
	})

	t.Run("stores access and refresh tokens", func(t *testing.T) {
		svc, store := newService(t, mux)

		user, err := svc.OAuthLogin(context.Background(), student.Email, "correct horse")
		require.NoError(t, err)
		assert.Equal(t, student, user)

		snap := store.Snapshot()
		assert.Equal(t, access, snap.Token)
		assert.Equal(t, "refresh-1", snap.RefreshToken)
	})

	t.Run("rejected grant", func(t *testing.T) {
		svc, store := newService(t, mux)

		_, err := svc.OAuthLogin(context.Background(), student.Email, "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, ok := store.Token()
		assert.False(t, ok)
	})
}

func TestLogout(t *testing.T) {
	token := sessiontest.Token(t, student.ID, time.Now().Add(time.Hour))

	t.Run("notifies server and clears", func(t *testing.T) {
		var auth string

		mux := http.NewServeMux()
		mux.HandleFunc("POST "+DefaultLogoutPath, func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		})

		svc, store := newService(t, mux)
		require.NoError(t, store.Set(token, student))

		require.NoError(t, svc.Logout(context.Background()))

		assert.Equal(t, "Bearer "+token, auth)
		_, ok := store.Token()
		assert.False(t, ok)
	})

	t.Run("clears even when server fails", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST "+DefaultLogoutPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		svc, store := newService(t, mux)
		require.NoError(t, store.Set(token, student))

		require.NoError(t, svc.Logout(context.Background()))

		_, ok := store.Token()
		assert.False(t, ok)
	})

	t.Run("signed out is a no-op", func(t *testing.T) {
		svc, _ := newService(t, http.NewServeMux())
		require.NoError(t, svc.Logout(context.Background()))
	})
}

func blockingHandler(release <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}
}

func TestUnresponsiveServerTimesOut(t *testing.T) {
	token := sessiontest.Token(t, student.ID, time.Now().Add(time.Hour))

	tests := []struct {
		name string
		path string
		call func(ctx context.Context, svc *Service, store *session.Store) error
	}{
		{
			name: "password login",
			path: "POST " + DefaultLoginPath,
			call: func(ctx context.Context, svc *Service, _ *session.Store) error {
				_, err := svc.Login(ctx, student.Email, "correct horse")
				return err
			},
		},
		{
			name: "oauth login",
			path: "POST " + DefaultTokenPath,
			call: func(ctx context.Context, svc *Service, _ *session.Store) error {
				_, err := svc.OAuthLogin(ctx, student.Email, "correct horse")
				return err
			},
		},
		{
			name: "logout notification",
			path: "POST " + DefaultLogoutPath,
			call: func(ctx context.Context, svc *Service, store *session.Store) error {
				require.NoError(t, store.Set(token, student))
				return svc.notifyLogout(ctx, token)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			defer close(release)

			mux := http.NewServeMux()
			mux.HandleFunc(tt.path, blockingHandler(release))

			svc, store := newServiceWithTimeout(t, mux, 50*time.Millisecond)

			started := time.Now()
			err := tt.call(context.Background(), svc, store)
			require.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(started), 5*time.Second)
		})
	}
}

func TestLogout_UnresponsiveServerStillClears(t *testing.T) {
	token := sessiontest.Token(t, student.ID, time.Now().Add(time.Hour))

	release := make(chan struct{})
	defer close(release)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+DefaultLogoutPath, blockingHandler(release))

	svc, store := newServiceWithTimeout(t, mux, 50*time.Millisecond)
	require.NoError(t, store.Set(token, student))

	require.NoError(t, svc.Logout(context.Background()))

	_, ok := store.Token()
	assert.False(t, ok)
}
