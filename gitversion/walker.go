package gitversion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/git-pkgs/upmbridge/internal/semver"
)

// Walk visits every commit reachable from the repository tip depth-first and
// returns the version candidates in discovery order.
//
// Each commit is visited once. Tags at a commit whose name carries prefix and
// whose remainder parses as a semantic version become candidates, ordered by
// version and then tag name. A root commit without such tags contributes a
// 0.0.0 candidate with an empty tag.
func Walk(repo Repository, prefix string) ([]Candidate, error) {
	tip, err := repo.Tip()
	if err != nil {
		return nil, err
	}

	var (
		candidates []Candidate
		visited    = make(map[string]bool)
		stack      = []*Commit{tip}
	)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[c.ID] {
			continue
		}
		visited[c.ID] = true

		tags, err := repo.Tags(c)
		if err != nil {
			return nil, fmt.Errorf("reading tags of %s: %w", c.ID, err)
		}
		found := tagCandidates(c, tags, prefix)

		parents, err := repo.Parents(c)
		if err != nil {
			return nil, fmt.Errorf("reading parents of %s: %w", c.ID, err)
		}
		if len(parents) == 0 && len(found) == 0 {
			found = append(found, Candidate{Commit: c, Version: semver.Zero})
		}

		for _, cand := range found {
			cand.DiscoveryOrder = len(candidates)
			candidates = append(candidates, cand)
		}

		// Reverse order so the first parent is popped first.
		for i := len(parents) - 1; i >= 0; i-- {
			if !visited[parents[i].ID] {
				stack = append(stack, parents[i])
			}
		}
	}
	return candidates, nil
}

func tagCandidates(c *Commit, tags []string, prefix string) []Candidate {
	var found []Candidate
	for _, tag := range tags {
		rest, ok := strings.CutPrefix(tag, prefix)
		if !ok || rest == "" {
			continue
		}
		v, err := semver.Parse(rest)
		if err != nil {
			continue
		}
		found = append(found, Candidate{Commit: c, Tag: tag, Version: v})
	}

	slices.SortFunc(found, func(a, b Candidate) int {
		if c := semver.Compare(a.Version, b.Version); c != 0 {
			return c
		}
		return strings.Compare(a.Tag, b.Tag)
	})
	return found
}
