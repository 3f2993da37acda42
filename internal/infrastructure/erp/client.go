// Package erp is the remote procedure gateway to the Odoo instances behind
// each environment. Every failure leaving this package is a *shared.AppError.
package erp

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/erp/posgateway/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// Default timeouts for outbound calls
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultCallTimeout    = 5 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
)

// Credentials are passed with every call and never stored.
type Credentials struct {
	Username string
	Password string
}

// Client talks JSON-RPC to Odoo and plain HTTP for reports.
// It holds no session state between calls.
type Client struct {
	http           *resty.Client
	logger         *zap.Logger
	metrics        *telemetry.Metrics
	connectTimeout time.Duration
	callTimeout    time.Duration
	fetchTimeout   time.Duration
	nextID         atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimeouts overrides the connect, call and fetch defaults. Zero keeps the default.
func WithTimeouts(connect, call, fetch time.Duration) Option {
	return func(c *Client) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if call > 0 {
			c.callTimeout = call
		}
		if fetch > 0 {
			c.fetchTimeout = fetch
		}
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

// NewClient creates a Client. The underlying resty client has no cookie jar,
// so sessions of different callers never mix.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetCookieJar(nil).
			SetHeader("Accept", "application/json"),
		logger:         zap.NewNop(),
		connectTimeout: DefaultConnectTimeout,
		callTimeout:    DefaultCallTimeout,
		fetchTimeout:   DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) timeoutOr(override, fallback time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return fallback
}
