// Package closure computes the transitive set of packages a set of root
// packages needs for one target framework.
package closure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/git-pkgs/upmbridge/internal/core"
	"github.com/git-pkgs/upmbridge/internal/framework"
	"github.com/git-pkgs/upmbridge/internal/semver"
)

var (
	// ErrMetadataFetchFailed wraps errors returned by the Source.
	ErrMetadataFetchFailed = errors.New("metadata fetch failed")

	// ErrNoMatchingVersion is returned when no published version of a
	// package satisfies a requested range.
	ErrNoMatchingVersion = semver.ErrNoMatchingVersion
)

// Source provides the published versions of a package, each with its
// dependency groups. An unknown package yields an empty slice.
type Source interface {
	FetchVersions(ctx context.Context, id string) ([]core.Version, error)
}

// Resolver computes dependency closures against a Source.
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the closure of roots for target. Every root floats to its
// latest stable version and every dependency to the latest version inside
// its range. Any failure aborts the whole resolution; no partial set is
// returned.
func (r *Resolver) Resolve(ctx context.Context, roots []string, target framework.Framework) (*Set, error) {
	run := &run{
		source:   r.source,
		target:   target,
		resolved: NewSet(),
		fetched:  make(map[string][]core.Version),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		g.Go(func() error {
			return run.expand(gctx, root, semver.Unbounded())
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return run.resolved, nil
}

// run holds the state of one Resolve call.
type run struct {
	source Source
	target framework.Framework

	resolved *Set

	mu      sync.Mutex
	fetched map[string][]core.Version
	flight  singleflight.Group
}

func (r *run) expand(ctx context.Context, id string, want semver.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	versions, err := r.versions(ctx, id)
	if err != nil {
		return err
	}
	chosen, identity, err := bestMatch(id, versions, want)
	if err != nil {
		return err
	}
	if !r.resolved.Add(identity) {
		return nil
	}

	group, ok := SelectGroup(chosen, r.target)
	if !ok {
		return nil
	}

	ranges := make([]semver.Range, len(group.Dependencies))
	for i, dep := range group.Dependencies {
		rng, err := semver.ParseRange(dep.Requirements)
		if err != nil {
			return fmt.Errorf("%s: dependency %s: %w", identity, dep.Name, err)
		}
		ranges[i] = rng.WithFloat(semver.FloatAbsoluteLatest)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range group.Dependencies {
		g.Go(func() error {
			return r.expand(gctx, dep.Name, ranges[i])
		})
	}
	return g.Wait()
}

// versions fetches the versions of id at most once per run.
func (r *run) versions(ctx context.Context, id string) ([]core.Version, error) {
	key := strings.ToLower(id)

	r.mu.Lock()
	cached, ok := r.fetched[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		r.mu.Lock()
		cached, ok := r.fetched[key]
		r.mu.Unlock()
		if ok {
			return cached, nil
		}

		versions, err := r.source.FetchVersions(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMetadataFetchFailed, id, err)
		}

		r.mu.Lock()
		r.fetched[key] = versions
		r.mu.Unlock()
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Version), nil
}

// bestMatch picks the version of id that want resolves to. Listed versions
// are preferred; unlisted ones are only considered when no listed version
// matches.
func bestMatch(id string, versions []core.Version, want semver.Range) (*core.Version, Identity, error) {
	chosen, err := match(core.Listed(versions), want)
	if errors.Is(err, semver.ErrNoMatchingVersion) {
		chosen, err = match(versions, want)
	}
	if err != nil {
		return nil, Identity{}, fmt.Errorf("%s %s: %w", id, want, err)
	}

	v, _ := semver.Parse(chosen.Number)
	name := id
	if canonical, ok := chosen.Metadata["id"].(string); ok && canonical != "" {
		name = canonical
	}
	return chosen, Identity{ID: name, Version: v.Normalized()}, nil
}

func match(versions []core.Version, want semver.Range) (*core.Version, error) {
	known := make([]semver.Version, 0, len(versions))
	byVersion := make(map[string]*core.Version, len(versions))
	for i := range versions {
		v, err := semver.Parse(versions[i].Number)
		if err != nil {
			continue
		}
		known = append(known, v)
		byVersion[v.Normalized()] = &versions[i]
	}

	best, err := semver.BestMatch(known, want)
	if err != nil {
		return nil, err
	}
	return byVersion[best.Normalized()], nil
}

// SelectGroup returns the dependency group of v nearest to target. Groups
// whose framework cannot be parsed are ignored.
func SelectGroup(v *core.Version, target framework.Framework) (core.DependencyGroup, bool) {
	candidates := make([]framework.Framework, 0, len(v.DependencyGroups))
	groups := make([]core.DependencyGroup, 0, len(v.DependencyGroups))
	for _, g := range v.DependencyGroups {
		f, err := framework.Parse(g.TargetFramework)
		if err != nil {
			continue
		}
		candidates = append(candidates, f)
		groups = append(groups, g)
	}

	nearest, ok := framework.Nearest(candidates, target)
	if !ok {
		return core.DependencyGroup{}, false
	}
	for i, f := range candidates {
		if f.Equal(nearest) {
			return groups[i], true
		}
	}
	return core.DependencyGroup{}, false
}
