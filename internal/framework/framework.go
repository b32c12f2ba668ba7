// Package framework parses NuGet target framework monikers and picks the
// dependency group nearest to a target framework.
package framework

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/git-pkgs/upmbridge/internal/semver"
)

// Framework families.
const (
	Any          = "any"
	NETFramework = "netframework"
	NETStandard  = "netstandard"
	NETCoreApp   = "netcoreapp"
)

// Framework is a target framework: a family plus a version.
type Framework struct {
	Family  string
	Version semver.Version
}

// AnyFramework is the framework of a dependency group without a target
// framework, which applies everywhere.
var AnyFramework = Framework{Family: Any, Version: semver.Zero}

// net5 is where "net" monikers switch from .NET Framework to .NET Core.
var net5 = semver.MustParse("5.0")

// Parse parses a target framework in either the registry form
// (".NETStandard2.0", ".NETFramework4.6.1", ".NETFramework,Version=v4.6.1")
// or the short folder form ("netstandard2.0", "net461", "netcoreapp3.1",
// "net6.0"). An empty string or "any" is AnyFramework.
func Parse(raw string) (Framework, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == Any {
		return AnyFramework, nil
	}

	if name, ver, ok := strings.Cut(s, ",version="); ok {
		s = name + strings.TrimPrefix(ver, "v")
	}
	// net6.0-windows and friends: the platform suffix does not change the
	// dependency group.
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		s = s[:idx]
	}

	idx := strings.IndexFunc(s, unicode.IsDigit)
	if idx <= 0 {
		return Framework{}, fmt.Errorf("framework: parse %q: missing version", raw)
	}
	name, ver := strings.TrimPrefix(s[:idx], "."), s[idx:]

	switch name {
	case "net":
		v, err := parseVersion(raw, ver)
		if err != nil {
			return Framework{}, err
		}
		if strings.Contains(ver, ".") && semver.Compare(v, net5) >= 0 {
			return Framework{Family: NETCoreApp, Version: v}, nil
		}
		return Framework{Family: NETFramework, Version: v}, nil
	case "netframework":
		name = NETFramework
	case "netstandard":
		name = NETStandard
	case "netcoreapp":
		name = NETCoreApp
	}

	v, err := parseVersion(raw, ver)
	if err != nil {
		return Framework{}, err
	}
	return Framework{Family: name, Version: v}, nil
}

func MustParse(raw string) Framework {
	f, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return f
}

// parseVersion reads "4.6.1" as is and the dotless "461" one digit per
// component.
func parseVersion(raw, ver string) (semver.Version, error) {
	if !strings.Contains(ver, ".") {
		ver = strings.Join(strings.Split(ver, ""), ".")
	}
	v, err := semver.Parse(ver)
	if err != nil {
		return semver.Version{}, fmt.Errorf("framework: parse %q: %w", raw, err)
	}
	return v, nil
}

// IsAny reports whether f applies to every framework.
func (f Framework) IsAny() bool {
	return f.Family == Any
}

// Equal reports whether f and o name the same framework.
func (f Framework) Equal(o Framework) bool {
	return f.Family == o.Family && semver.Equal(f.Version, o.Version)
}

// String returns the short folder name, e.g. "net461" or "netstandard2.0".
func (f Framework) String() string {
	if f.IsAny() {
		return Any
	}
	v := f.Version.String()
	major, minor, patch := splitVersion(v)

	switch {
	case f.Family == NETFramework:
		if patch != "0" {
			return "net" + major + minor + patch
		}
		return "net" + major + minor
	case f.Family == NETCoreApp && semver.Compare(f.Version, net5) >= 0:
		return "net" + major + "." + minor
	default:
		return f.Family + major + "." + minor
	}
}

func splitVersion(v string) (string, string, string) {
	if idx := strings.IndexAny(v, "-+"); idx >= 0 {
		v = v[:idx]
	}
	parts := strings.SplitN(v, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return parts[0], parts[1], parts[2]
}
