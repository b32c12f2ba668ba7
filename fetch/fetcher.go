// Package fetch locates and downloads .nupkg artifacts with retry, circuit
// breaking and DNS caching.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	logger "github.com/sirupsen/logrus"

	"github.com/git-pkgs/upmbridge/client"
)

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream registry unavailable")
)

const (
	artifactTimeout   = 5 * time.Minute
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
	maxErrorBody      = 1024
)

// Stat describes an artifact as reported by the upstream, without its body.
type Stat struct {
	Size        int64 // -1 if unknown
	ContentType string
	ETag        string
}

// Artifact is an artifact body being streamed from the upstream.
type Artifact struct {
	Stat
	Body io.ReadCloser
}

// FetcherInterface is implemented by Fetcher and CircuitBreakerFetcher.
type FetcherInterface interface {
	// Fetch opens the artifact at url. The caller closes Artifact.Body.
	Fetch(ctx context.Context, url string) (*Artifact, error)
	// Stat reports the artifact at url without downloading it.
	Stat(ctx context.Context, url string) (Stat, error)
}

// Fetcher downloads artifacts from upstream registries.
type Fetcher struct {
	http       *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries bounds the retries of rate-limited and failed requests.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// NewFetcher returns a Fetcher sharing the DNS-caching transport of the
// registry client.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		http: &http.Client{
			Timeout:   artifactTimeout,
			Transport: client.NewTransport(),
		},
		userAgent:  "upmbridge",
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (*Artifact, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	return &Artifact{Stat: statOf(resp), Body: resp.Body}, nil
}

func (f *Fetcher) Stat(ctx context.Context, url string) (Stat, error) {
	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return Stat{}, err
	}
	_ = resp.Body.Close()
	return statOf(resp), nil
}

// do sends the request until it succeeds, fails permanently or runs out of
// retries. Only rate limits and upstream failures are retried.
func (f *Fetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.baseDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.NextBackOff()
			if delay == backoff.Stop {
				delay = b.MaxInterval
			}
			logger.Debugf("Retrying %s %s in %s (attempt %d/%d): %v", method, url, delay, attempt, f.maxRetries, lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := f.once(ctx, method, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrUpstreamDown) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) once(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/octet-stream, */*")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, statusError(resp, url)
}

func statusError(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, url)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s returned %d", ErrUpstreamDown, url, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, body)
	}
}

func statOf(resp *http.Response) Stat {
	size := int64(-1)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = n
		}
	}
	return Stat{
		Size:        size,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}
}
