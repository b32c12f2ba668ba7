package gitversion

import (
	"cmp"
	"slices"

	"github.com/git-pkgs/upmbridge/internal/semver"
)

// Select returns the winning candidate: the highest version, and among equal
// versions the one discovered first.
func Select(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		if c := byVersionDesc(a, b); c != 0 {
			return c
		}
		return byDiscoveryAsc(a, b)
	})
	return sorted[0], nil
}

func byVersionDesc(a, b Candidate) int {
	return semver.Compare(b.Version, a.Version)
}

func byDiscoveryAsc(a, b Candidate) int {
	return cmp.Compare(a.DiscoveryOrder, b.DiscoveryOrder)
}
