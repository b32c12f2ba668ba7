// Package gitversion derives a semantic version for a source tree from the
// version tags in its commit history.
//
// Walk collects one candidate per version tag reachable from the tip (plus a
// synthetic 0.0.0 candidate for untagged root commits), Select picks the
// winner, and Resolver memoizes the result for the lifetime of a run.
package gitversion

import (
	"errors"
	"time"

	"github.com/git-pkgs/upmbridge/internal/semver"
)

// DefaultTagPrefix is the prefix a tag needs to be read as a version.
const DefaultTagPrefix = "v"

var (
	// ErrRepositoryUnavailable is returned when the repository cannot be
	// opened or has no commits.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrNoCandidates is returned by Select for an empty candidate list.
	ErrNoCandidates = errors.New("no version candidates")
)

// Commit is a commit in the history graph.
type Commit struct {
	ID   string
	When time.Time
}

// Candidate is a version found while walking the history. Tag is empty for
// the synthetic candidate of an untagged root commit.
type Candidate struct {
	Commit         *Commit
	Tag            string
	Version        semver.Version
	DiscoveryOrder int
}

// Repository gives read access to the commit graph.
type Repository interface {
	// Tip returns the commit the walk starts from.
	Tip() (*Commit, error)
	// Parents returns the parents of c in their recorded order.
	Parents(c *Commit) ([]*Commit, error)
	// Tags returns the names of the tags pointing at c.
	Tags(c *Commit) ([]string, error)
}
