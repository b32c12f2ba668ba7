package framework

import "github.com/git-pkgs/upmbridge/internal/semver"

// standardCap maps a framework family and minimum version to the highest
// .NET Standard version it implements. Rows per family are ordered by
// descending minimum version.
var standardCap = []struct {
	family string
	min    semver.Version
	limit  semver.Version
}{
	{NETFramework, semver.MustParse("4.6.1"), semver.MustParse("2.0")},
	{NETFramework, semver.MustParse("4.6"), semver.MustParse("1.3")},
	{NETFramework, semver.MustParse("4.5.1"), semver.MustParse("1.2")},
	{NETFramework, semver.MustParse("4.5"), semver.MustParse("1.1")},
	{NETCoreApp, semver.MustParse("3.0"), semver.MustParse("2.1")},
	{NETCoreApp, semver.MustParse("2.0"), semver.MustParse("2.0")},
	{NETCoreApp, semver.MustParse("1.0"), semver.MustParse("1.6")},
}

// StandardVersion returns the highest .NET Standard version target can
// consume.
func StandardVersion(target Framework) (semver.Version, bool) {
	if target.Family == NETStandard {
		return target.Version, true
	}
	for _, row := range standardCap {
		if row.family == target.Family && semver.Compare(target.Version, row.min) >= 0 {
			return row.limit, true
		}
	}
	return semver.Version{}, false
}

// Compatible reports whether a package built for candidate can be consumed
// by a project targeting target.
func Compatible(target, candidate Framework) bool {
	if candidate.IsAny() {
		return true
	}
	if candidate.Family == target.Family {
		return semver.Compare(candidate.Version, target.Version) <= 0
	}
	if candidate.Family == NETStandard {
		limit, ok := StandardVersion(target)
		return ok && semver.Compare(candidate.Version, limit) <= 0
	}
	return false
}

// Nearest picks the candidate framework closest to target: an exact match,
// then the highest compatible version of the same family, then the highest
// compatible .NET Standard, then a framework-agnostic candidate. It returns
// false when no candidate is compatible.
func Nearest(candidates []Framework, target Framework) (Framework, bool) {
	var sameFamily, standard, agnostic *Framework
	for i := range candidates {
		c := &candidates[i]
		switch {
		case c.Equal(target):
			return *c, true
		case !Compatible(target, *c):
		case c.IsAny():
			if agnostic == nil {
				agnostic = c
			}
		case c.Family == target.Family:
			if sameFamily == nil || semver.Compare(c.Version, sameFamily.Version) > 0 {
				sameFamily = c
			}
		case c.Family == NETStandard:
			if standard == nil || semver.Compare(c.Version, standard.Version) > 0 {
				standard = c
			}
		}
	}

	for _, f := range []*Framework{sameFamily, standard, agnostic} {
		if f != nil {
			return *f, true
		}
	}
	return Framework{}, false
}
