package login

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/gateway"
	"github.com/wolfeidau/edugate/internal/session"
	"github.com/wolfeidau/edugate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

const (
	DefaultLoginPath   = "/api/auth/login"
	DefaultLogoutPath  = "/api/auth/logout"
	DefaultTokenPath   = "/oauth/token"
	DefaultProfilePath = "/api/auth/me"

	profileTimeout = 10 * time.Second
)

// Config names the data service endpoints used to sign in and out.
type Config struct {
	LoginPath   string
	LogoutPath  string
	ProfilePath string

	// TokenURL is the OAuth2 token endpoint. A path is resolved against the
	// data service.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Service signs the user in and out, writing the result to the session store.
type Service struct {
	client  *gateway.Client
	store   *session.Store
	cfg     Config
	metrics *telemetry.Metrics
}

func New(client *gateway.Client, store *session.Store, cfg Config) *Service {
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = DefaultLogoutPath
	}
	if cfg.ProfilePath == "" {
		cfg.ProfilePath = DefaultProfilePath
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenPath
	}

	return &Service{
		client:  client,
		store:   store,
		cfg:     cfg,
		metrics: telemetry.GetMetrics(),
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Result is the body returned by the password login endpoint.
type Result struct {
	Token string       `json:"token"`
	User  session.User `json:"user"`
}

// Login exchanges an email and password for a session.
func (s *Service) Login(ctx context.Context, email, password string) (session.User, error) {
	target, err := s.client.URL(s.cfg.LoginPath, nil)
	if err != nil {
		return session.User{}, err
	}

	payload, err := json.Marshal(credentials{Email: email, Password: password})
	if err != nil {
		return session.User{}, fmt.Errorf("failed to encode credentials: %w", err)
	}

	ctx, cancel := s.client.WithTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return session.User{}, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.HTTPClient().Do(req)
	if err != nil {
		return session.User{}, fmt.Errorf("failed to send login request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return session.User{}, err
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return session.User{}, fmt.Errorf("failed to decode login response: %w", err)
	}

	if err := s.store.Set(result.Token, result.User); err != nil {
		return session.User{}, fmt.Errorf("failed to store session: %w", err)
	}

	log.Info().Str("user", result.User.ID).Str("role", result.User.Role).Msg("signed in")

	return result.User, nil
}

// OAuthLogin signs in with the OAuth2 resource owner password grant, then
// fetches the profile with the issued access token.
func (s *Service) OAuthLogin(ctx context.Context, email, password string) (session.User, error) {
	tokenURL, err := s.resolve(s.cfg.TokenURL)
	if err != nil {
		return session.User{}, err
	}

	conf := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Scopes:       s.cfg.Scopes,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	ctx, cancel := s.client.WithTimeout(ctx)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.HTTPClient())

	token, err := conf.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			switch retrieveErr.Response.StatusCode {
			case http.StatusBadRequest, http.StatusUnauthorized:
				return session.User{}, ErrInvalidCredentials
			}
		}
		return session.User{}, fmt.Errorf("failed to obtain token: %w", err)
	}

	user, err := s.profile(ctx, conf, token)
	if err != nil {
		return session.User{}, err
	}

	if err := s.store.Set(token.AccessToken, user); err != nil {
		return session.User{}, fmt.Errorf("failed to store session: %w", err)
	}

	if token.RefreshToken != "" {
		if err := s.store.SetRefreshToken(token.RefreshToken); err != nil {
			return session.User{}, fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	log.Info().Str("user", user.ID).Str("role", user.Role).Msg("signed in with oauth")

	return user, nil
}

func (s *Service) profile(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (session.User, error) {
	ctx, cancel := context.WithTimeout(ctx, profileTimeout)
	defer cancel()

	target, err := s.client.URL(s.cfg.ProfilePath, nil)
	if err != nil {
		return session.User{}, err
	}

	resp, err := conf.Client(ctx, token).Get(target)
	if err != nil {
		return session.User{}, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return session.User{}, err
	}

	var user session.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return session.User{}, fmt.Errorf("failed to decode profile: %w", err)
	}

	return user, nil
}

// Logout tells the data service the session is over, then clears it locally.
// The server call is best effort.
func (s *Service) Logout(ctx context.Context) error {
	if token, ok := s.store.Token(); ok {
		if err := s.notifyLogout(ctx, token); err != nil {
			log.Warn().Err(err).Msg("logout request failed, clearing session anyway")
		}
	}

	cleared, err := s.store.Discard()
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	if cleared {
		s.metrics.SessionsCleared.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "logout")))
		log.Info().Msg("signed out")
	}

	return nil
}

func (s *Service) notifyLogout(ctx context.Context, token string) error {
	target, err := s.client.URL(s.cfg.LogoutPath, nil)
	if err != nil {
		return err
	}

	ctx, cancel := s.client.WithTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send logout request: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (s *Service) resolve(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, nil
	}
	return s.client.URL(target, nil)
}

// checkStatus maps a rejected credential to ErrInvalidCredentials and any
// other failure to a gateway.RequestFailedError.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	return &gateway.RequestFailedError{Status: resp.StatusCode, Message: msg}
}
