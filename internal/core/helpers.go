package core

import "strings"

// Listed returns the versions that are still offered by the registry,
// dropping yanked (unlisted) ones. Deprecated versions stay listed.
func Listed(versions []Version) []Version {
	listed := make([]Version, 0, len(versions))
	for _, v := range versions {
		if v.Status != StatusYanked {
			listed = append(listed, v)
		}
	}
	return listed
}

// FindVersion returns the version whose number equals number, ignoring case
// and build metadata.
func FindVersion(versions []Version, number string) (*Version, bool) {
	want := stripBuild(number)
	for i := range versions {
		if strings.EqualFold(stripBuild(versions[i].Number), want) {
			return &versions[i], true
		}
	}
	return nil, false
}

func stripBuild(number string) string {
	if idx := strings.IndexByte(number, '+'); idx >= 0 {
		return number[:idx]
	}
	return number
}
