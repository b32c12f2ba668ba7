// Package nuget provides a registry client for the NuGet v3 API.
package nuget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/upmbridge/internal/core"
)

const (
	DefaultURL = "https://api.nuget.org/v3"
	ecosystem  = "nuget"

	// registrationPath is the gzip-compressed, SemVer 2.0 aware registration
	// hive. Go's transport decompresses it transparently.
	registrationPath = "registration5-gz-semver2"
)

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, client *core.Client) core.Registry {
		return New(baseURL, client)
	})
}

type Registry struct {
	baseURL string
	client  *core.Client
	urls    *URLs
}

func New(baseURL string, client *core.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = core.DefaultClient()
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Registry{
		baseURL: baseURL,
		client:  client,
		urls:    &URLs{baseURL: baseURL},
	}
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() core.URLBuilder {
	return r.urls
}

type registrationResponse struct {
	Count int                `json:"count"`
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Count int                `json:"count"`
	Lower string             `json:"lower"`
	Upper string             `json:"upper"`
	Items []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	ID             string       `json:"@id"`
	CatalogEntry   catalogEntry `json:"catalogEntry"`
	PackageContent string       `json:"packageContent"`
}

type catalogEntry struct {
	ID                string            `json:"id"`
	Version           string            `json:"version"`
	Description       string            `json:"description"`
	ProjectURL        string            `json:"projectUrl"`
	LicenseExpression string            `json:"licenseExpression"`
	Listed            *bool             `json:"listed,omitempty"`
	Tags              []string          `json:"tags"`
	Published         string            `json:"published"`
	Deprecation       *deprecationInfo  `json:"deprecation,omitempty"`
	Dependencies      []dependencyGroup `json:"dependencyGroups"`
	Authors           string            `json:"authors"`
}

type deprecationInfo struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons"`
}

type dependencyGroup struct {
	TargetFramework string       `json:"targetFramework"`
	Dependencies    []dependency `json:"dependencies"`
}

type dependency struct {
	ID    string `json:"id"`
	Range string `json:"range"`
}

// fetchLeaves returns every registration leaf of a package in the order the
// registration index lists them (ascending version). Pages that are not
// inlined in the index are fetched concurrently by their @id.
func (r *Registry) fetchLeaves(ctx context.Context, name string) ([]registrationLeaf, error) {
	url := fmt.Sprintf("%s/%s/%s/index.json", r.baseURL, registrationPath, strings.ToLower(name))

	var resp registrationResponse
	if err := r.client.GetJSON(ctx, url, &resp); err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		return nil, err
	}

	pages := make([][]registrationLeaf, len(resp.Items))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range resp.Items {
		if len(page.Items) > 0 || page.ID == "" {
			pages[i] = page.Items
			continue
		}
		g.Go(func() error {
			var full registrationPage
			if err := r.client.GetJSON(gctx, page.ID, &full); err != nil {
				return fmt.Errorf("fetching registration page %s: %w", page.ID, err)
			}
			pages[i] = full.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var leaves []registrationLeaf
	for _, items := range pages {
		leaves = append(leaves, items...)
	}
	return leaves, nil
}

func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.Package, error) {
	leaves, err := r.fetchLeaves(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
	}

	// Use the latest version's catalog entry
	entry := leaves[len(leaves)-1].CatalogEntry

	var repository string
	if strings.Contains(entry.ProjectURL, "github.com") ||
		strings.Contains(entry.ProjectURL, "gitlab.com") {
		repository = entry.ProjectURL
	}

	return &core.Package{
		Name:        entry.ID,
		Description: entry.Description,
		Homepage:    entry.ProjectURL,
		Repository:  repository,
		Licenses:    entry.LicenseExpression,
		Keywords:    entry.Tags,
		Metadata: map[string]any{
			"authors": entry.Authors,
		},
	}, nil
}

// FetchVersions returns every version of a package in registry order. An
// unknown package yields an empty slice.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	leaves, err := r.fetchLeaves(ctx, name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []core.Version{}, nil
		}
		return nil, err
	}

	versions := make([]core.Version, 0, len(leaves))
	for _, leaf := range leaves {
		versions = append(versions, toVersion(leaf))
	}
	return versions, nil
}

func toVersion(leaf registrationLeaf) core.Version {
	entry := leaf.CatalogEntry

	var publishedAt time.Time
	if entry.Published != "" {
		publishedAt, _ = time.Parse(time.RFC3339, entry.Published)
	}

	var status core.VersionStatus
	switch {
	case entry.Listed != nil && !*entry.Listed:
		status = core.StatusYanked
	case entry.Deprecation != nil:
		status = core.StatusDeprecated
	}

	groups := make([]core.DependencyGroup, 0, len(entry.Dependencies))
	for _, g := range entry.Dependencies {
		deps := make([]core.Dependency, 0, len(g.Dependencies))
		for _, d := range g.Dependencies {
			deps = append(deps, core.Dependency{
				Name:         d.ID,
				Requirements: d.Range,
			})
		}
		groups = append(groups, core.DependencyGroup{
			TargetFramework: g.TargetFramework,
			Dependencies:    deps,
		})
	}

	metadata := map[string]any{"id": entry.ID}
	if leaf.PackageContent != "" {
		metadata["packageContent"] = leaf.PackageContent
	}
	if entry.Deprecation != nil {
		metadata["deprecation"] = entry.Deprecation.Message
	}

	return core.Version{
		Number:           entry.Version,
		PublishedAt:      publishedAt,
		Licenses:         entry.LicenseExpression,
		Status:           status,
		DependencyGroups: groups,
		Metadata:         metadata,
	}
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.nuget.org/packages/%s/%s", name, version)
	}
	return fmt.Sprintf("https://www.nuget.org/packages/%s", name)
}

// Download returns the flat container URL of the .nupkg. Ids and versions
// are lowercased there.
func (u *URLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	lower := strings.ToLower(name)
	lowerVersion := strings.ToLower(version)
	return fmt.Sprintf("%s/%s/%s/%s.%s.nupkg", u.flatContainer(), lower, lowerVersion, lower, lowerVersion)
}

func (u *URLs) flatContainer() string {
	if strings.HasSuffix(u.baseURL, "/v3") {
		return u.baseURL + "-flatcontainer"
	}
	return u.baseURL + "/v3-flatcontainer"
}

func (u *URLs) Documentation(name, version string) string {
	return u.Registry(name, version)
}

func (u *URLs) PURL(name, version string) string {
	return core.FormatPURL(ecosystem, name, version)
}
