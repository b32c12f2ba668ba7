package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/git-pkgs/upmbridge/client"
	"github.com/git-pkgs/upmbridge/internal/core"
)

var (
	ErrUnsupportedEcosystem = errors.New("unsupported ecosystem")
	ErrNoDownloadURL        = errors.New("no download URL available")
)

// Registry provides package metadata and URL information for artifact
// resolution. Registries from internal/core satisfy it.
type Registry interface {
	Ecosystem() string
	FetchVersions(ctx context.Context, name string) ([]core.Version, error)
	URLs() client.URLBuilder
}

// Resolver determines download URLs for package artifacts.
type Resolver struct {
	registries map[string]Registry
}

func NewResolver(regs ...Registry) *Resolver {
	r := &Resolver{registries: make(map[string]Registry)}
	for _, reg := range regs {
		r.RegisterRegistry(reg)
	}
	return r
}

// RegisterRegistry adds a registry for URL resolution.
func (r *Resolver) RegisterRegistry(reg Registry) {
	r.registries[reg.Ecosystem()] = reg
}

// ArtifactInfo contains information about a downloadable artifact.
type ArtifactInfo struct {
	URL       string
	Filename  string
	Integrity string // sha256-... or sha512-...
}

// Resolve returns the download URL and filename for a package artifact.
func (r *Resolver) Resolve(ctx context.Context, ecosystem, name, version string) (*ArtifactInfo, error) {
	reg, ok := r.registries[ecosystem]
	if !ok {
		return resolveWithoutRegistry(ecosystem, name, version)
	}

	if url := reg.URLs().Download(name, version); url != "" {
		return &ArtifactInfo{
			URL:      url,
			Filename: filenameFromURL(url),
		}, nil
	}

	return resolveFromMetadata(ctx, reg, name, version)
}

// resolveWithoutRegistry handles ecosystems with predictable URLs when no
// registry client is configured.
func resolveWithoutRegistry(ecosystem, name, version string) (*ArtifactInfo, error) {
	switch ecosystem {
	case "nuget":
		// The flat container only serves lowercase ids and versions
		id, v := strings.ToLower(name), strings.ToLower(version)
		filename := fmt.Sprintf("%s.%s.nupkg", id, v)
		return &ArtifactInfo{
			URL:      fmt.Sprintf("https://api.nuget.org/v3-flatcontainer/%s/%s/%s", id, v, filename),
			Filename: filename,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEcosystem, ecosystem)
	}
}

// resolveFromMetadata fetches version metadata to find the download URL.
func resolveFromMetadata(ctx context.Context, reg Registry, name, version string) (*ArtifactInfo, error) {
	versions, err := reg.FetchVersions(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching versions: %w", err)
	}

	v, ok := core.FindVersion(versions, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, name, version)
	}

	for _, key := range []string{"packageContent", "download_url"} {
		if url, ok := v.Metadata[key].(string); ok && url != "" {
			return &ArtifactInfo{
				URL:       url,
				Filename:  filenameFromURL(url),
				Integrity: v.Integrity,
			}, nil
		}
	}
	return nil, ErrNoDownloadURL
}

func filenameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
