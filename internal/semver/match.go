package semver

import (
	"errors"
	"fmt"
)

// ErrNoMatchingVersion is returned when no known version satisfies a range.
var ErrNoMatchingVersion = errors.New("no matching version")

// BestMatch picks the version a range resolves to among the known versions.
//
// With FloatAbsoluteLatest the highest satisfying stable version wins; with
// FloatNone the lowest one does. Pre-release versions are only considered
// when no stable version satisfies the range.
func BestMatch(known []Version, r Range) (Version, error) {
	var stable, pre []Version
	for _, v := range known {
		if !r.Satisfies(v) {
			continue
		}
		if v.IsPrerelease() {
			pre = append(pre, v)
		} else {
			stable = append(stable, v)
		}
	}

	pool := stable
	if len(pool) == 0 {
		pool = pre
	}
	if len(pool) == 0 {
		return Version{}, fmt.Errorf("%w for range %s", ErrNoMatchingVersion, r)
	}

	best := pool[0]
	for _, v := range pool[1:] {
		c := Compare(v, best)
		if r.Float == FloatAbsoluteLatest && c > 0 || r.Float == FloatNone && c < 0 {
			best = v
		}
	}
	return best, nil
}
