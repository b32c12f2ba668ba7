// Package upmbridge plans the import of NuGet packages into a UPM-style
// registry.
//
// A Bridge runs two independent resolutions side by side: the version of
// the local source tree, derived from its tag history, and the transitive
// closure of the configured root packages for one target framework.
//
// Basic usage:
//
//	import (
//		"github.com/git-pkgs/upmbridge"
//		_ "github.com/git-pkgs/upmbridge/all"
//	)
//
//	reg, err := upmbridge.NewRegistry("nuget", "", upmbridge.DefaultClient())
//	if err != nil {
//		log.Fatal(err)
//	}
//	repo, err := gitversion.Open(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	bridge := upmbridge.New(reg, repo)
//	plan, err := bridge.Plan(ctx, []string{"Serilog", "pkg:nuget/Newtonsoft.Json"}, framework.MustParse("netstandard2.0"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(plan.Version.Version, len(plan.Packages))
package upmbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/git-pkgs/purl"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/upmbridge/client"
	"github.com/git-pkgs/upmbridge/closure"
	"github.com/git-pkgs/upmbridge/fetch"
	"github.com/git-pkgs/upmbridge/gitversion"
	"github.com/git-pkgs/upmbridge/internal/core"
	"github.com/git-pkgs/upmbridge/internal/framework"
)

// Re-export types from internal/core
type (
	// Registry is the interface implemented by registry clients.
	Registry = core.Registry

	// Version represents a specific version of a package.
	Version = core.Version

	// DependencyGroup is the dependency list of a version for one framework.
	DependencyGroup = core.DependencyGroup

	// Dependency is a package id plus a version range.
	Dependency = core.Dependency

	// VersionStatus represents the status of a package version.
	VersionStatus = core.VersionStatus
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for registry APIs.
	Client = client.Client

	// URLBuilder constructs URLs for a registry.
	URLBuilder = client.URLBuilder
)

// Re-export constants
const (
	StatusNone       = core.StatusNone
	StatusYanked     = core.StatusYanked
	StatusDeprecated = core.StatusDeprecated
)

// Re-export errors
var (
	ErrNotFound              = client.ErrNotFound
	ErrNoMatchingVersion     = closure.ErrNoMatchingVersion
	ErrMetadataFetchFailed   = closure.ErrMetadataFetchFailed
	ErrRepositoryUnavailable = gitversion.ErrRepositoryUnavailable
	ErrNoCandidates          = gitversion.ErrNoCandidates
)

// Error types
type (
	HTTPError      = client.HTTPError
	NotFoundError  = client.NotFoundError
	RateLimitError = client.RateLimitError
)

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:nuget/Serilog) and version PURLs (pkg:nuget/Serilog@3.1.0).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// Package is one member of a planned closure along with where to find it.
// The descriptive fields are only set once the plan has been described.
type Package struct {
	closure.Identity
	PURL          string
	RegistryURL   string
	DownloadURL   string
	Documentation string

	Description string
	ProjectURL  string
	Authors     string
	License     string
}

// Plan is the outcome of a Bridge run.
type Plan struct {
	Target   framework.Framework
	Version  gitversion.Result
	Packages []Package
	Took     time.Duration
}

// Identities returns the closure members in plan order.
func (p *Plan) Identities() []closure.Identity {
	ids := make([]closure.Identity, len(p.Packages))
	for i, pkg := range p.Packages {
		ids[i] = pkg.Identity
	}
	return ids
}

const describeConcurrency = 8

// Bridge ties a registry and a source repository together.
type Bridge struct {
	registry Registry
	closure  *closure.Resolver
	versions *gitversion.Resolver
}

// BridgeOption configures a Bridge.
type BridgeOption func(*bridgeOptions)

type bridgeOptions struct {
	tagPrefix string
}

// WithTagPrefix sets the prefix version tags carry. The default is "v".
func WithTagPrefix(prefix string) BridgeOption {
	return func(o *bridgeOptions) {
		o.tagPrefix = prefix
	}
}

// New returns a Bridge resolving packages against reg and the source
// version against repo.
func New(reg Registry, repo gitversion.Repository, opts ...BridgeOption) *Bridge {
	o := bridgeOptions{tagPrefix: gitversion.DefaultTagPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge{
		registry: reg,
		closure:  closure.NewResolver(reg),
		versions: gitversion.NewResolver(repo, gitversion.WithTagPrefix(o.tagPrefix)),
	}
}

// Version returns the history-derived version of the source tree. The
// history is walked once per Bridge.
func (b *Bridge) Version() (gitversion.Result, error) {
	return b.versions.Resolve()
}

// Resolve returns the dependency closure of roots for target. Roots are
// package ids or PURLs of the registry's ecosystem.
func (b *Bridge) Resolve(ctx context.Context, roots []string, target framework.Framework) (*closure.Set, error) {
	ids, err := b.rootIDs(roots)
	if err != nil {
		return nil, err
	}
	return b.closure.Resolve(ctx, ids, target)
}

// Plan computes the source version and the package closure concurrently.
// Either failure fails the plan.
func (b *Bridge) Plan(ctx context.Context, roots []string, target framework.Framework) (*Plan, error) {
	start := time.Now()
	ids, err := b.rootIDs(roots)
	if err != nil {
		return nil, err
	}

	var (
		version gitversion.Result
		set     *closure.Set
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := b.versions.Resolve()
		if err != nil {
			return fmt.Errorf("computing source version: %w", err)
		}
		logger.Debugf("Source version %s from %q at %s", v.Version, v.Tag, v.Commit)
		version = v
		return nil
	})
	g.Go(func() error {
		s, err := b.closure.Resolve(gctx, ids, target)
		if err != nil {
			return fmt.Errorf("resolving dependencies: %w", err)
		}
		logger.Debugf("Resolved %d packages for %s", s.Len(), target)
		set = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	plan := &Plan{
		Target:   target,
		Version:  version,
		Packages: b.describe(set.Identities()),
		Took:     time.Since(start),
	}
	logger.Infof("Planned %d packages at version %s in %s", len(plan.Packages), version.Version, plan.Took.Round(time.Millisecond))
	return plan, nil
}

// Describe fills the descriptive fields of every planned package from the
// registry's package metadata.
func (b *Bridge) Describe(ctx context.Context, plan *Plan) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(describeConcurrency)
	for i := range plan.Packages {
		pkg := &plan.Packages[i]
		g.Go(func() error {
			meta, err := b.registry.FetchPackage(gctx, pkg.ID)
			if err != nil {
				return fmt.Errorf("describing %s: %w", pkg.Identity, err)
			}
			pkg.Description = meta.Description
			pkg.ProjectURL = meta.Homepage
			pkg.License = meta.Licenses
			if authors, ok := meta.Metadata["authors"].(string); ok {
				pkg.Authors = authors
			}
			return nil
		})
	}
	return g.Wait()
}

// Download writes the artifact of every planned package into dir.
func (b *Bridge) Download(ctx context.Context, plan *Plan, dir string, f fetch.FetcherInterface, opts ...fetch.DownloaderOption) ([]fetch.Downloaded, error) {
	opts = append([]fetch.DownloaderOption{fetch.WithEcosystem(b.registry.Ecosystem())}, opts...)
	d := fetch.NewDownloader(f, fetch.NewResolver(b.registry), opts...)
	return d.Download(ctx, plan.Identities(), dir)
}

func (b *Bridge) rootIDs(roots []string) ([]string, error) {
	ids := make([]string, 0, len(roots))
	for _, root := range roots {
		id, err := core.PackageID(b.registry.Ecosystem(), root)
		if err != nil {
			return nil, fmt.Errorf("invalid root package: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Bridge) describe(ids []closure.Identity) []Package {
	urls := b.registry.URLs()
	pkgs := make([]Package, len(ids))
	for i, id := range ids {
		pkgs[i] = Package{
			Identity:      id,
			PURL:          urls.PURL(id.ID, id.Version),
			RegistryURL:   urls.Registry(id.ID, id.Version),
			DownloadURL:   urls.Download(id.ID, id.Version),
			Documentation: urls.Documentation(id.ID, id.Version),
		}
	}
	return pkgs
}

// NewRegistry creates a registry client for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
// If client is nil, DefaultClient() is used.
func NewRegistry(ecosystem string, baseURL string, c *Client) (Registry, error) {
	return core.New(ecosystem, baseURL, c)
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// Option configures a Client.
type Option = client.Option

// WithTimeout sets the HTTP client timeout.
var WithTimeout = client.WithTimeout

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// SupportedEcosystems returns all registered ecosystem types.
// Note: ecosystems must be imported to be registered.
func SupportedEcosystems() []string {
	return core.SupportedEcosystems()
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	return client.BuildURLs(urls, name, version)
}
