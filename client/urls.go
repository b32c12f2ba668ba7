package client

// URLBuilder constructs URLs for a package version hosted by a registry.
type URLBuilder interface {
	Registry(name, version string) string
	Download(name, version string) string
	Documentation(name, version string) string
	PURL(name, version string) string
}

// URL kinds returned by BuildURLs.
const (
	URLRegistry = "registry"
	URLDownload = "download"
	URLDocs     = "docs"
	URLPURL     = "purl"
)

// BuildURLs returns a map of all non-empty URLs for a package version,
// keyed by URLRegistry, URLDownload, URLDocs and URLPURL.
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string, 4)
	for kind, fn := range map[string]func(string, string) string{
		URLRegistry: urls.Registry,
		URLDownload: urls.Download,
		URLDocs:     urls.Documentation,
		URLPURL:     urls.PURL,
	} {
		if v := fn(name, version); v != "" {
			result[kind] = v
		}
	}
	return result
}
