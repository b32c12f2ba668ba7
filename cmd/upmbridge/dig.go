package main

import (
	"go.uber.org/dig"

	"github.com/git-pkgs/upmbridge"
	"github.com/git-pkgs/upmbridge/client"
	"github.com/git-pkgs/upmbridge/config"
	"github.com/git-pkgs/upmbridge/fetch"
	"github.com/git-pkgs/upmbridge/gitversion"
)

// registerProviders registers every constructor the commands need with the
// DIG container.
func registerProviders(container *dig.Container, cfg *config.Config) error {
	providers := []any{
		func() *config.Config { return cfg },
		newClient,
		newRegistry,
		newRepository,
		newBridge,
		newFetcher,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.NewClient(
		client.WithTimeout(cfg.Registry.Timeout),
		client.WithMaxRetries(*cfg.Registry.MaxRetries),
	).WithUserAgent(cfg.Registry.UserAgent)
}

func newRegistry(cfg *config.Config, c *client.Client) (upmbridge.Registry, error) {
	return upmbridge.NewRegistry("nuget", cfg.Registry.URL, c)
}

func newRepository(cfg *config.Config) (gitversion.Repository, error) {
	return gitversion.Open(cfg.Repository)
}

func newBridge(cfg *config.Config, reg upmbridge.Registry, repo gitversion.Repository) *upmbridge.Bridge {
	return upmbridge.New(reg, repo, upmbridge.WithTagPrefix(cfg.Prefix()))
}

func newFetcher(cfg *config.Config) *fetch.CircuitBreakerFetcher {
	return fetch.NewCircuitBreakerFetcher(
		fetch.NewFetcher(
			fetch.WithUserAgent(cfg.Registry.UserAgent),
			fetch.WithMaxRetries(*cfg.Registry.MaxRetries),
		),
		fetch.WithTripThreshold(int64(cfg.Registry.BreakerTrips)),
	)
}

// injectBridge builds a container for cfg and returns the Bridge and
// fetcher it wires up.
func injectBridge(cfg *config.Config) (*upmbridge.Bridge, *fetch.CircuitBreakerFetcher, error) {
	container := dig.New()
	if err := registerProviders(container, cfg); err != nil {
		return nil, nil, err
	}

	var (
		bridge  *upmbridge.Bridge
		fetcher *fetch.CircuitBreakerFetcher
	)
	if err := container.Invoke(func(b *upmbridge.Bridge, f *fetch.CircuitBreakerFetcher) {
		bridge, fetcher = b, f
	}); err != nil {
		return nil, nil, dig.RootCause(err)
	}
	return bridge, fetcher, nil
}
