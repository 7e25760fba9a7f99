package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/navigate"
	"github.com/wolfeidau/edugate/internal/portal"
)

type ServeCmd struct {
	Listen       string        `help:"Portal listen address" default:"127.0.0.1:8080" env:"EDUGATE_LISTEN"`
	CORSOrigins  []string      `help:"Origins allowed to call /api/*" env:"EDUGATE_CORS_ORIGINS"`
	IdleInterval time.Duration `help:"How often the idle policy is checked" default:"1m" env:"EDUGATE_IDLE_INTERVAL"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the portal turns an ended session into an HTTP redirect itself
	nav := navigate.Func(func(dest string) {
		log.Info().Str("dest", dest).Msg("session ended")
	})

	a, err := globals.setup(ctx, nav)
	if err != nil {
		return err
	}
	defer a.close()

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = a.profile.CORSOrigins
	}

	srv, err := portal.New(a.store, a.client, a.login, a.guard, portal.Config{
		CORSOrigins:  origins,
		MaxIdle:      a.profile.MaxIdle,
		IdleInterval: s.IdleInterval,
	})
	if err != nil {
		return err
	}

	log.Info().Str("version", globals.Version).Str("server", a.profile.BaseURL).Msg("starting portal")

	return srv.Run(ctx, s.Listen)
}
