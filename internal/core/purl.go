package core

import (
	"fmt"
	"strings"

	packageurl "github.com/git-pkgs/packageurl-go"
)

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name in the format expected by the registry.
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:nuget/Serilog) and version PURLs (pkg:nuget/Serilog@3.1.0).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// FormatPURL builds the canonical PURL string for a package version.
func FormatPURL(ecosystem, name, version string) string {
	return packageurl.NewPackageURL(ecosystem, "", name, version, nil, "").ToString()
}

// PackageID turns a root package reference into a plain package id for the
// given ecosystem. References are either bare ids ("Serilog") or PURLs
// ("pkg:nuget/Serilog"); a PURL for another ecosystem or one pinning a
// version is rejected.
func PackageID(ecosystem, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty package reference")
	}
	if !strings.HasPrefix(ref, "pkg:") {
		return ref, nil
	}

	p, err := ParsePURL(ref)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", ref, err)
	}
	if p.Type != ecosystem {
		return "", fmt.Errorf("%q is a %s package, expected %s", ref, p.Type, ecosystem)
	}
	if p.Version != "" {
		return "", fmt.Errorf("%q pins version %s; root packages always float to the latest version", ref, p.Version)
	}
	return p.FullName(), nil
}
