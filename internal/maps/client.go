// Package maps talks to the Google Maps Platform: geocoding, routing,
// nearby lodging and elevation. It also splits routes into daily segments.
package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/pkg/retry"
)

const errorBodyLimit = 512

// Client calls the Google endpoints configured in model.GoogleConfig.
// Geocoding and lodging answers are memoised for CacheTTL.
type Client struct {
	cfg        model.GoogleConfig
	maxResults int
	http       *http.Client
	cache      *cache.Cache
}

type Option func(*Client)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxResults caps lodging results per search.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

func NewClient(cfg model.GoogleConfig, opts ...Option) *Client {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Client{
		cfg:        cfg,
		maxResults: 5,
		http:       &http.Client{},
		cache:      cache.New(ttl, 2*ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) policy() retry.Policy {
	return retry.Policy{Retries: c.cfg.MaxRetries, Backoff: c.cfg.Backoff, Timeout: c.cfg.Timeout}
}

// getJSON issues a GET with query parameters and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, query url.Values, out any) error {
	return c.call(ctx, op, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		u.RawQuery = query.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}, out)
}

// postJSON sends payload as JSON with the given headers and decodes the body into out.
func (c *Client) postJSON(ctx context.Context, op, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errx.Internal("failed to encode "+op+" request", err)
	}
	return c.call(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}, out)
}

// call retries transport failures, 429 and 5xx. Other 4xx answers and
// undecodable bodies fail immediately.
func (c *Client) call(ctx context.Context, op string, build func(context.Context) (*http.Request, error), out any) error {
	err := retry.Do(ctx, c.policy(), func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
			statusErr := fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(snippet))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("%s: decode response: %w", op, err))
		}
		return nil
	})
	if err != nil {
		return errx.External(op+" request failed", err)
	}
	return nil
}
