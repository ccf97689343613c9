// Package palette propagates newly created KPI definitions to the palette
// service so they appear in its pickers.
package palette

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kpicore/internal/core"
	"kpicore/pkg/domain"
)

const defaultTimeout = 5 * time.Second

// Client posts palette entries to a remote endpoint with bounded retry. It
// implements core.PaletteNotifier; delivery failures are logged and never
// surface to the caller.
type Client struct {
	url        string
	httpClient *http.Client
	logger     core.Logger
	maxElapsed time.Duration
	async      bool
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger overrides the client logger.
func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxElapsed bounds the total retry window.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxElapsed = d
		}
	}
}

// WithSynchronousDelivery makes NotifyChanged block until delivery finishes.
// Used in tests; production delivery is fire-and-forget.
func WithSynchronousDelivery() Option {
	return func(c *Client) { c.async = false }
}

// NewClient constructs a palette client for the given endpoint URL.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     core.NewSlogLogger(nil),
		maxElapsed: 30 * time.Second,
		async:      true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenFromEnv returns a client when KPICORE_PALETTE_URL is set, nil otherwise.
func OpenFromEnv(opts ...Option) *Client {
	url := os.Getenv("KPICORE_PALETTE_URL")
	if url == "" {
		return nil
	}
	return NewClient(url, opts...)
}

// NotifyChanged delivers the entries to the palette service. Delivery is
// detached from the calling transaction: a palette outage never fails a KPI
// creation.
func (c *Client) NotifyChanged(ctx context.Context, entries []domain.PaletteEntry) {
	if c == nil || c.url == "" || len(entries) == 0 {
		return
	}
	if c.async {
		go c.deliver(context.WithoutCancel(ctx), entries)
		return
	}
	c.deliver(ctx, entries)
}

func (c *Client) deliver(ctx context.Context, entries []domain.PaletteEntry) {
	payload, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("palette payload marshal failed", "error", err)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	err = backoff.Retry(func() error {
		return c.post(ctx, payload)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		c.logger.Warn("palette propagation failed", "entries", len(entries), "error", err)
		return
	}
	c.logger.Debug("palette propagated", "entries", len(entries))
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("palette endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("palette endpoint rejected payload with %d", resp.StatusCode))
	}
	return nil
}
