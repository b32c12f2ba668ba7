// Package client provides the HTTP client used to talk to package registry APIs.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultUserAgent  = "upmbridge"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
	defaultBaseDelay  = 500 * time.Millisecond
	maxRetryAfter     = 60 * time.Second
	maxErrorBody      = 1024
)

// Client is an HTTP client with retry logic for registry APIs.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the initial interval of the exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return NewClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: NewTransport(),
		},
		userAgent:  defaultUserAgent,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithUserAgent returns a copy of the client that sends the given User-Agent.
func (c *Client) WithUserAgent(ua string) *Client {
	clone := *c
	clone.userAgent = ua
	return &clone
}

// GetJSON fetches url and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// GetBody fetches url and returns the raw response body.
// 429 and 5xx responses are retried with exponential backoff.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(lastErr, b)
			logger.Debugf("Retrying %s in %s (attempt %d/%d): %v", url, delay, attempt, c.maxRetries, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &RateLimitError{RetryAfter: retryAfter}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
	}
}

func isRetryable(err error) bool {
	switch e := err.(type) {
	case *RateLimitError:
		return true
	case *HTTPError:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// retryDelay honours Retry-After when the registry sent one, capped so a
// misbehaving upstream cannot stall a run indefinitely.
func retryDelay(err error, b *backoff.ExponentialBackOff) time.Duration {
	if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter > 0 {
		d := time.Duration(rl.RetryAfter) * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	d := b.NextBackOff()
	if d == backoff.Stop {
		d = b.MaxInterval
	}
	return d
}
