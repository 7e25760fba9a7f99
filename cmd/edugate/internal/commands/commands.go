package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/config"
	"github.com/wolfeidau/edugate/internal/gateway"
	"github.com/wolfeidau/edugate/internal/guard"
	"github.com/wolfeidau/edugate/internal/logger"
	"github.com/wolfeidau/edugate/internal/login"
	"github.com/wolfeidau/edugate/internal/navigate"
	"github.com/wolfeidau/edugate/internal/session"
	"github.com/wolfeidau/edugate/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string

	Connection
}

// Connection flags are shared by every command. Unset flags fall back to the
// profile file.
type Connection struct {
	Server     string        `help:"Data service base URL" env:"EDUGATE_SERVER"`
	ConfigFile string        `name:"config" help:"Profile path (default ~/.edugate/config.yaml)" env:"EDUGATE_CONFIG"`
	StateDir   string        `help:"Session state directory (default ~/.edugate)" env:"EDUGATE_STATE_DIR"`
	ClientID   string        `help:"OAuth2 client ID" env:"EDUGATE_CLIENT_ID"`
	TokenURL   string        `help:"OAuth2 token endpoint" env:"EDUGATE_TOKEN_URL"`
	Timeout    time.Duration `help:"Per request timeout" env:"EDUGATE_TIMEOUT"`
	MaxIdle    time.Duration `help:"Idle period after which the session ends" env:"EDUGATE_MAX_IDLE"`
	AdminRoles []string      `help:"Roles allowed on admin routes" env:"EDUGATE_ADMIN_ROLES"`
	Cache      bool          `help:"Cache reads for the current session" env:"EDUGATE_CACHE"`
	CacheDir   string        `help:"Keep the read cache on disk" env:"EDUGATE_CACHE_DIR"`
	Tracing    bool          `help:"Enable OpenTelemetry export" env:"EDUGATE_TRACING"`
}

// app is the wired client used by a single command.
type app struct {
	profile config.Profile
	store   *session.Store
	client  *gateway.Client
	login   *login.Service
	guard   *guard.Guard

	shutdown telemetry.ShutdownFunc
}

func (g *Globals) setup(ctx context.Context, nav navigate.Navigator) (*app, error) {
	logger.Setup(g.Debug)

	profile, err := g.profile()
	if err != nil {
		return nil, err
	}

	if profile.BaseURL == "" {
		return nil, errors.New("no data service configured, pass --server or set baseURL in the profile")
	}

	area, err := session.NewFileArea(g.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session state: %w", err)
	}

	store := session.NewStore(area)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	maxIdle := profile.MaxIdle
	if maxIdle <= 0 {
		maxIdle = session.DefaultMaxIdle
	}
	if store.EnforceIdle(maxIdle) {
		log.Info().Dur("maxIdle", maxIdle).Msg("session ended after inactivity")
	}

	if nav == nil {
		nav = navigate.Func(func(dest string) {
			fmt.Fprintf(os.Stderr, "Your session has ended. Sign in again with: edugate login (%s)\n", dest)
		})
	}

	client, err := gateway.New(store, nav, gateway.Config{
		BaseURL:  profile.BaseURL,
		Timeout:  profile.Timeout,
		Cache:    profile.Cache,
		CacheDir: g.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	loginSvc := login.New(client, store, login.Config{
		LoginPath:   profile.LoginPath,
		LogoutPath:  profile.LogoutPath,
		ProfilePath: profile.ProfilePath,
		TokenURL:    profile.TokenURL,
		ClientID:    profile.ClientID,
		Scopes:      profile.Scopes,
	})

	gd := guard.New(store, nav, nil, guard.Config{
		AdminRoles: profile.AdminRoles,
		MaxIdle:    profile.MaxIdle,
	})

	shutdown := telemetry.ShutdownFunc(telemetry.Noop)
	if g.Tracing {
		shutdown, err = telemetry.InitTelemetry(ctx, "edugate", g.Version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize telemetry, continuing without it")
			shutdown = telemetry.Noop
		}
	}

	log.Debug().
		Str("server", profile.BaseURL).
		Str("state", area.Path()).
		Msg("client ready")

	return &app{
		profile:  profile,
		store:    store,
		client:   client,
		login:    loginSvc,
		guard:    gd,
		shutdown: shutdown,
	}, nil
}

// profile merges the profile file with flags and environment.
func (g *Globals) profile() (config.Profile, error) {
	path := g.ConfigFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Profile{}, err
		}
	}

	base, err := config.Load(path)
	if err != nil {
		return config.Profile{}, err
	}

	return base.Merge(config.Profile{
		BaseURL:    g.Server,
		TokenURL:   g.TokenURL,
		ClientID:   g.ClientID,
		AdminRoles: g.AdminRoles,
		MaxIdle:    g.MaxIdle,
		Timeout:    g.Timeout,
		Cache:      g.Cache || g.CacheDir != "",
	}), nil
}

func (a *app) close() {
	a.client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
}
