package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

const defaultTripThreshold = 5

// CircuitBreakerFetcher wraps a fetcher with one circuit breaker per
// upstream host. Missing artifacts do not count as failures.
type CircuitBreakerFetcher struct {
	fetcher   FetcherInterface
	threshold int64

	mu       sync.RWMutex
	breakers map[string]*circuit.Breaker
}

// BreakerOption configures a CircuitBreakerFetcher.
type BreakerOption func(*CircuitBreakerFetcher)

// WithTripThreshold sets how many consecutive failures open a breaker.
func WithTripThreshold(n int64) BreakerOption {
	return func(cbf *CircuitBreakerFetcher) {
		cbf.threshold = n
	}
}

func NewCircuitBreakerFetcher(f FetcherInterface, opts ...BreakerOption) *CircuitBreakerFetcher {
	cbf := &CircuitBreakerFetcher{
		fetcher:   f,
		threshold: defaultTripThreshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(cbf)
	}
	return cbf
}

func (cbf *CircuitBreakerFetcher) breaker(host string) *circuit.Breaker {
	cbf.mu.RLock()
	b, ok := cbf.breakers[host]
	cbf.mu.RUnlock()
	if ok {
		return b
	}

	cbf.mu.Lock()
	defer cbf.mu.Unlock()
	if b, ok := cbf.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbf.threshold),
	})
	cbf.breakers[host] = b
	return b
}

// record reports the outcome of a call to the breaker.
func record(b *circuit.Breaker, err error) {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		b.Success()
		return
	}
	b.Fail()
}

func (cbf *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Artifact, error) {
	host := hostOf(fetchURL)
	b := cbf.breaker(host)
	if !b.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	artifact, err := cbf.fetcher.Fetch(ctx, fetchURL)
	record(b, err)
	return artifact, err
}

func (cbf *CircuitBreakerFetcher) Stat(ctx context.Context, statURL string) (Stat, error) {
	host := hostOf(statURL)
	b := cbf.breaker(host)
	if !b.Ready() {
		return Stat{}, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	stat, err := cbf.fetcher.Stat(ctx, statURL)
	record(b, err)
	return stat, err
}

// hostOf groups URLs by host for breaker selection.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}

// OpenBreakers returns the hosts whose breaker is currently open, sorted.
func (cbf *CircuitBreakerFetcher) OpenBreakers() []string {
	cbf.mu.RLock()
	defer cbf.mu.RUnlock()

	var open []string
	for host, b := range cbf.breakers {
		if b.Tripped() {
			open = append(open, host)
		}
	}
	sort.Strings(open)
	return open
}
