package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/edugate/internal/logger"
	"github.com/wolfeidau/edugate/internal/navigate"
	"github.com/wolfeidau/edugate/internal/session"
	"github.com/wolfeidau/edugate/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultLoginPath   = "/login"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3

	// maxMessageBytes caps how much of an error body ends up in a message.
	maxMessageBytes = 4096
)

// Config controls a Client.
type Config struct {
	// BaseURL of the data service. Request paths are joined onto it.
	BaseURL string
	// LoginPath is where the user is sent after a 401.
	LoginPath string
	// Timeout applies to calls whose context carries no deadline. Negative
	// disables it.
	Timeout time.Duration
	// MaxAttempts bounds how often a read is tried.
	MaxAttempts uint
	// RetryInterval is the first backoff delay between read attempts.
	RetryInterval time.Duration
	// Cache enables HTTP caching of reads.
	Cache bool
	// CacheDir stores cached reads on disk instead of in memory.
	CacheDir string
	// Transport is the base round tripper, http.DefaultTransport if nil.
	Transport http.RoundTripper
}

// Client sends requests to the data service on behalf of the current session.
type Client struct {
	cfg   Config
	base  *url.URL
	store *session.Store
	nav   *navigate.Once

	writes *http.Client
	reads  *http.Client
	cache  *readCache

	metrics     *telemetry.Metrics
	unsubscribe func()
}

// New creates a client bound to store. Navigation after a 401 goes through nav
// and fires at most once until the next login.
func New(store *session.Store, nav navigate.Navigator, cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", cfg.BaseURL)
	}

	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if nav == nil {
		nav = navigate.Discard
	}

	transport := otelhttp.NewTransport(
		logger.NewTransport(log.Logger, cfg.Transport),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	c := &Client{
		cfg:     cfg,
		base:    base,
		store:   store,
		nav:     navigate.NewOnce(nav),
		writes:  &http.Client{Transport: transport},
		reads:   &http.Client{Transport: transport},
		metrics: telemetry.GetMetrics(),
	}

	if cfg.Cache {
		c.cache = newReadCache(cfg.CacheDir, transport)
		c.reads = &http.Client{Transport: c.cache}
	}

	c.unsubscribe = store.Subscribe(c.sessionChanged)

	return c, nil
}

// Close detaches the client from the store.
func (c *Client) Close() {
	c.unsubscribe()
}

// HTTPClient returns the instrumented client without session handling, for
// calls made before a session exists.
func (c *Client) HTTPClient() *http.Client {
	return c.writes
}

// URL resolves path against the base URL.
func (c *Client) URL(path string, params *Params) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}

	u := c.base.JoinPath(ref.Path)

	query := ref.RawQuery
	if encoded := params.Encode(); encoded != "" {
		if query != "" {
			query += "&"
		}
		query += encoded
	}
	u.RawQuery = query

	return u.String(), nil
}

// Send performs a write (or any one-shot call). body, when non-nil, is sent
// as JSON. A 2xx response is returned for the caller to read and close.
//
// A 401 clears the session, navigates to login and returns ErrSessionEnded.
// Any other non-2xx status is returned as a *RequestFailedError.
func (c *Client) Send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.send(ctx, method, path, nil, body, false)
}

func (c *Client) send(ctx context.Context, method, path string, params *Params, body any, read bool) (*http.Response, error) {
	target, err := c.URL(path, params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	ctx, cancel := c.WithTimeout(ctx)

	started := time.Now()

	var resp *http.Response
	if read {
		resp, err = c.retry(ctx, method, target, payload)
	} else {
		resp, err = c.roundTrip(ctx, c.writes, method, target, payload)
	}

	c.record(ctx, method, resp, err, started)

	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send %s %s: %w", method, path, err)
	}

	if err := c.classify(resp); err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, hc *http.Client, method, target string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token, ok := c.store.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID())

	return hc.Do(req)
}

// classify consumes and closes the body of any response it rejects.
func (c *Client) classify(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		drain(resp)
		c.endSession()
		return ErrSessionEnded
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	default:
		msg := message(resp)
		drain(resp)
		return &RequestFailedError{Status: resp.StatusCode, Message: msg}
	}
}

func (c *Client) endSession() {
	c.metrics.UnauthorizedTotal.Add(context.Background(), 1)

	cleared, err := c.store.Discard()
	if err != nil {
		log.Error().Err(err).Msg("failed to clear session after 401")
	}

	if cleared {
		c.metrics.SessionsCleared.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", "unauthorized")))
	}

	c.nav.Navigate(c.cfg.LoginPath)
}

func (c *Client) sessionChanged(ev session.Event) {
	if ev == session.EventSet {
		c.nav.Reset()
	}

	if c.cache != nil {
		token, _ := c.store.Token()
		c.cache.Reset(session.Fingerprint(token))
		log.Debug().Str("event", ev.String()).Msg("read cache reset")
	}
}

// WithTimeout applies the per-request timeout unless ctx already carries a
// deadline. Callers using HTTPClient directly should wrap their context with it.
func (c *Client) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.cfg.Timeout < 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) record(ctx context.Context, method string, resp *http.Response, err error, started time.Time) {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", status),
		attribute.Bool("cached", fromCache(resp)),
	)

	c.metrics.RequestsTotal.Add(ctx, 1, attrs)
	c.metrics.RequestDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000, attrs)

	if err != nil || status < 200 || status > 299 {
		c.metrics.RequestFailures.Add(ctx, 1, attrs)
	}
}

// message is the trimmed body text, or the status line when there is none.
func message(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
	if err == nil {
		if msg := strings.TrimSpace(string(data)); msg != "" {
			return msg
		}
	}
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMessageBytes))
	_ = resp.Body.Close()
}

func requestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// cancelBody releases the per-request timeout once the caller is done.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// JSON sends body and decodes the response into T. An empty success body
// yields nil.
func JSON[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	resp, err := c.Send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return decode[T](resp)
}

func decode[T any](resp *http.Response) (*T, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// On401 selects how Query reacts to a 401.
type On401 int

const (
	// Redirect reports ErrSessionEnded, the same as Send.
	Redirect On401 = iota
	// ReturnNull reports no result and no error.
	ReturnNull
)

type queryOptions struct {
	on401 On401
}

// QueryOption configures a single Query call.
type QueryOption func(*queryOptions)

// On401ReturnNull makes a 401 yield (nil, nil). The session is still cleared
// and login navigation still happens.
func On401ReturnNull() QueryOption {
	return func(o *queryOptions) { o.on401 = ReturnNull }
}

// On401Redirect is the default.
func On401Redirect() QueryOption {
	return func(o *queryOptions) { o.on401 = Redirect }
}

// Query GETs path with params and decodes the JSON result. Transient failures
// are retried.
func Query[T any](ctx context.Context, c *Client, path string, params *Params, opts ...QueryOption) (*T, error) {
	o := queryOptions{on401: Redirect}
	for _, opt := range opts {
		opt(&o)
	}

	resp, err := c.send(ctx, http.MethodGet, path, params, nil, true)
	if err != nil {
		if o.on401 == ReturnNull && errors.Is(err, ErrSessionEnded) {
			return nil, nil
		}
		return nil, err
	}

	return decode[T](resp)
}
