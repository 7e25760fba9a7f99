package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

var errTransient = errors.New("transient response")

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retry runs a read until it gets a non-transient answer. The final attempt's
// response is handed back as is so the caller sees the real status and body.
func (c *Client) retry(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	if c.cfg.RetryInterval > 0 {
		bo.InitialInterval = c.cfg.RetryInterval
		bo.MaxInterval = 10 * c.cfg.RetryInterval
	}

	var attempt uint

	op := func() (*http.Response, error) {
		attempt++

		resp, err := c.roundTrip(ctx, c.reads, method, target, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		if retryableStatus(resp.StatusCode) && attempt < c.cfg.MaxAttempts {
			status := resp.Status
			drain(resp)
			return nil, fmt.Errorf("%w: %s", errTransient, status)
		}

		return resp, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.RequestRetries.Add(ctx, 1)
			log.Debug().Err(err).Str("url", target).Dur("next", next).Msg("retrying read")
		}),
	)
}
