package logger

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger and installs it as the zerolog global.
// Debug mode switches to human readable console output.
func Setup(dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Caller().Stack().Logger()
	}

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Transport logs each outbound request once it completes.
type Transport struct {
	next   http.RoundTripper
	logger zerolog.Logger
}

// NewTransport wraps next. A nil next uses http.DefaultTransport.
func NewTransport(logger zerolog.Logger, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{next: next, logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	resp, err := t.next.RoundTrip(req)

	evt := t.logger.Debug()
	if err != nil {
		evt = t.logger.Warn().Err(err)
	}

	evt = evt.
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("duration", time.Since(started))

	if resp != nil {
		evt = evt.Int("status", resp.StatusCode)
	}

	evt.Msg("http request")

	return resp, err
}
