// Package semver implements NuGet versions, NuGet version ranges and
// best-match selection over a set of published versions.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a NuGet version: a semantic version plus the optional fourth
// revision component NuGet carries over from System.Version.
//
// The first three components, the pre-release and the build metadata are
// held by github.com/Masterminds/semver/v3. The revision orders after patch
// and before the pre-release.
type Version struct {
	v        *mm.Version
	revision uint64
}

// Zero is the 0.0.0 version.
var Zero = MustParse("0.0.0")

// Parse parses a version. A leading "v" is accepted, missing minor and patch
// components default to zero and a fourth component is kept as the revision.
func Parse(raw string) (Version, error) {
	head, revision, err := splitRevision(raw)
	if err != nil {
		return Version{}, err
	}
	v, err := mm.NewVersion(head)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v, revision: revision}, nil
}

func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// splitRevision cuts the fourth numeric component out of raw and returns the
// remaining three-part version.
func splitRevision(raw string) (string, uint64, error) {
	numbers, suffix := raw, ""
	if idx := strings.IndexAny(raw, "-+"); idx >= 0 {
		numbers, suffix = raw[:idx], raw[idx:]
	}
	parts := strings.Split(numbers, ".")
	if len(parts) != 4 {
		return raw, 0, nil
	}
	revision, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("semver: parse version %q: invalid revision %q", raw, parts[3])
	}
	return strings.Join(parts[:3], ".") + suffix, revision, nil
}

// IsZero reports whether v is the zero value (not the 0.0.0 version).
func (v Version) IsZero() bool {
	return v.v == nil
}

// IsPrerelease reports whether v carries a pre-release tag.
func (v Version) IsPrerelease() bool {
	return v.v != nil && v.v.Prerelease() != ""
}

// IncMajor returns the next major version with the lower components reset.
func (v Version) IncMajor() Version {
	next := v.v.IncMajor()
	return Version{v: &next}
}

// IncMinor returns the next minor version with the lower components reset.
func (v Version) IncMinor() Version {
	next := v.v.IncMinor()
	return Version{v: &next}
}

// IncPatch returns the next patch version.
func (v Version) IncPatch() Version {
	next := v.v.IncPatch()
	return Version{v: &next}
}

// String returns MAJOR.MINOR.PATCH[.REVISION][-PRERELEASE][+BUILD]. A zero
// revision is omitted.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.v.Major(), v.v.Minor(), v.v.Patch())
	if v.revision != 0 {
		fmt.Fprintf(&b, ".%d", v.revision)
	}
	if pre := v.v.Prerelease(); pre != "" {
		b.WriteString("-" + pre)
	}
	if meta := v.v.Metadata(); meta != "" {
		b.WriteString("+" + meta)
	}
	return b.String()
}

// Normalized returns the lowercased version without build metadata, the form
// NuGet uses in package paths and identities.
func (v Version) Normalized() string {
	s := v.String()
	if idx := strings.IndexByte(s, '+'); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToLower(s)
}

// Compare orders a and b by NuGet precedence and returns -1, 0 or 1.
// Build metadata is ignored and pre-release labels compare case-insensitively.
// The zero value sorts before every version.
func Compare(a, b Version) int {
	switch {
	case a.v == nil && b.v == nil:
		return 0
	case a.v == nil:
		return -1
	case b.v == nil:
		return 1
	}

	for _, pair := range [][2]uint64{
		{a.v.Major(), b.v.Major()},
		{a.v.Minor(), b.v.Minor()},
		{a.v.Patch(), b.v.Patch()},
		{a.revision, b.revision},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}

	pa := mm.New(0, 0, 0, strings.ToLower(a.v.Prerelease()), "")
	pb := mm.New(0, 0, 0, strings.ToLower(b.v.Prerelease()), "")
	return pa.Compare(pb)
}

// Equal reports whether a and b have the same precedence.
func Equal(a, b Version) bool {
	return Compare(a, b) == 0
}
