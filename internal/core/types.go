// Package core provides shared types and the registry system.
package core

import "time"

// Package represents metadata about a package from a registry.
type Package struct {
	Name        string
	Description string
	Homepage    string
	Repository  string
	Licenses    string
	Keywords    []string
	Metadata    map[string]any // registry-specific data
}

// Version represents a specific published version of a package together
// with the dependencies it declares per target framework.
type Version struct {
	Number           string
	PublishedAt      time.Time
	Licenses         string
	Integrity        string        // sha256-..., sha512-...
	Status           VersionStatus // "", "yanked", "deprecated"
	DependencyGroups []DependencyGroup
	Metadata         map[string]any
}

// VersionStatus represents the status of a package version.
type VersionStatus string

const (
	StatusNone       VersionStatus = ""
	StatusYanked     VersionStatus = "yanked"
	StatusDeprecated VersionStatus = "deprecated"
)

// DependencyGroup is the ordered list of dependencies a version declares
// for one target framework. An empty TargetFramework applies to any framework.
type DependencyGroup struct {
	TargetFramework string
	Dependencies    []Dependency
}

// Dependency represents a package dependency.
type Dependency struct {
	Name         string
	Requirements string // version range in the registry's own notation
}
