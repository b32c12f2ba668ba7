package gitversion

import (
	"sync"
	"time"

	"github.com/git-pkgs/upmbridge/internal/semver"
)

// Result is the version computed for a source tree.
type Result struct {
	Version semver.Version
	// LastVersionChangeWhen is the timestamp of the commit carrying the
	// winning version.
	LastVersionChangeWhen time.Time
	Commit                string
	Tag                   string
}

// Resolver computes the version of a repository once and returns the same
// result on every later call.
type Resolver struct {
	repo   Repository
	prefix string

	once   sync.Once
	result Result
	err    error
}

type Option func(*Resolver)

// WithTagPrefix sets the prefix version tags must carry.
func WithTagPrefix(prefix string) Option {
	return func(r *Resolver) {
		r.prefix = prefix
	}
}

func NewResolver(repo Repository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:   repo,
		prefix: DefaultTagPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the history on the first call and returns the memoized
// result afterwards. Safe for concurrent use.
func (r *Resolver) Resolve() (Result, error) {
	r.once.Do(func() {
		r.result, r.err = r.resolve()
	})
	return r.result, r.err
}

func (r *Resolver) resolve() (Result, error) {
	candidates, err := Walk(r.repo, r.prefix)
	if err != nil {
		return Result{}, err
	}
	winner, err := Select(candidates)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Version:               winner.Version,
		LastVersionChangeWhen: winner.Commit.When,
		Commit:                winner.Commit.ID,
		Tag:                   winner.Tag,
	}, nil
}
