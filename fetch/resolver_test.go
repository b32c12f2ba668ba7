package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/git-pkgs/upmbridge/closure"
	"github.com/git-pkgs/upmbridge/internal/core"
	"github.com/git-pkgs/upmbridge/internal/nuget"
)

func TestResolveWithoutRegistry(t *testing.T) {
	r := NewResolver()

	info, err := r.Resolve(context.Background(), "nuget", "Newtonsoft.Json", "13.0.3")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantURL := "https://api.nuget.org/v3-flatcontainer/newtonsoft.json/13.0.3/newtonsoft.json.13.0.3.nupkg"
	if info.URL != wantURL {
		t.Errorf("URL = %q, want %q", info.URL, wantURL)
	}
	if info.Filename != "newtonsoft.json.13.0.3.nupkg" {
		t.Errorf("Filename = %q", info.Filename)
	}
}

func TestResolveUnsupportedEcosystem(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(context.Background(), "npm", "lodash", "4.17.21")
	if !errors.Is(err, ErrUnsupportedEcosystem) {
		t.Errorf("expected ErrUnsupportedEcosystem, got %v", err)
	}
}

func TestResolveWithRegistry(t *testing.T) {
	r := NewResolver(nuget.New("https://nuget.example.com/v3", nil))

	info, err := r.Resolve(context.Background(), "nuget", "Serilog", "3.1.0-Dev")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	wantURL := "https://nuget.example.com/v3-flatcontainer/serilog/3.1.0-dev/serilog.3.1.0-dev.nupkg"
	if info.URL != wantURL {
		t.Errorf("URL = %q, want %q", info.URL, wantURL)
	}
}

// metadataRegistry has no URL pattern, so downloads come from version metadata.
type metadataRegistry struct {
	versions []core.Version
}

func (m metadataRegistry) Ecosystem() string { return "nuget" }

func (m metadataRegistry) FetchVersions(context.Context, string) ([]core.Version, error) {
	return m.versions, nil
}

func (m metadataRegistry) URLs() core.URLBuilder { return noURLs{} }

type noURLs struct{}

func (noURLs) Registry(string, string) string      { return "" }
func (noURLs) Download(string, string) string      { return "" }
func (noURLs) Documentation(string, string) string { return "" }
func (noURLs) PURL(string, string) string          { return "" }

func TestResolveFromMetadata(t *testing.T) {
	reg := metadataRegistry{versions: []core.Version{
		{Number: "1.0.0", Metadata: map[string]any{"packageContent": "https://cdn.example.com/pkg/a.1.0.0.nupkg"}},
		{Number: "2.0.0"},
	}}
	r := NewResolver(reg)

	info, err := r.Resolve(context.Background(), "nuget", "A", "1.0.0")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.Filename != "a.1.0.0.nupkg" {
		t.Errorf("Filename = %q", info.Filename)
	}

	if _, err := r.Resolve(context.Background(), "nuget", "A", "2.0.0"); !errors.Is(err, ErrNoDownloadURL) {
		t.Errorf("expected ErrNoDownloadURL, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "nuget", "A", "3.0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/path/to/file.nupkg", "file.nupkg"},
		{"https://example.com/file.zip", "file.zip"},
		{"file.txt", "file.txt"},
	}

	for _, tt := range tests {
		if got := filenameFromURL(tt.url); got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v3-flatcontainer/") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("contents of " + filepath.Base(r.URL.Path)))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(NewFetcher(), NewResolver(nuget.New(server.URL+"/v3", nil)), WithConcurrency(2))
	ids := []closure.Identity{
		{ID: "Serilog", Version: "3.1.0"},
		{ID: "Newtonsoft.Json", Version: "13.0.3"},
		{ID: "System.Memory", Version: "4.5.5"},
	}

	results, err := d.Download(context.Background(), ids, dir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(results) != len(ids) {
		t.Fatalf("expected %d results, got %d", len(ids), len(results))
	}

	for i, res := range results {
		if res.Identity != ids[i] {
			t.Errorf("results[%d] = %v, want %v", i, res.Identity, ids[i])
		}
		data, err := os.ReadFile(res.Path)
		if err != nil {
			t.Fatalf("reading %s: %v", res.Path, err)
		}
		if string(data) != "contents of "+filepath.Base(res.Path) {
			t.Errorf("unexpected contents %q", data)
		}
		if res.Size != int64(len(data)) {
			t.Errorf("Size = %d, want %d", res.Size, len(data))
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "serilog.3.1.0.nupkg")); err != nil {
		t.Errorf("expected serilog.3.1.0.nupkg: %v", err)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(NewFetcher(), NewResolver(nuget.New(server.URL+"/v3", nil)))

	_, err := d.Download(context.Background(), []closure.Identity{{ID: "Missing", Version: "1.0.0"}}, dir)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Missing@1.0.0") {
		t.Errorf("expected the identity in the error, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected an empty directory, got %d entries", len(entries))
	}
}

func TestDownloadKeepsPresentFiles(t *testing.T) {
	var gets, heads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "contents of " + filepath.Base(r.URL.Path)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			heads.Add(1)
			return
		}
		gets.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	dir := t.TempDir()
	same := "contents of serilog.3.1.0.nupkg"
	if err := os.WriteFile(filepath.Join(dir, "serilog.3.1.0.nupkg"), []byte(same), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "system.memory.4.5.5.nupkg"), []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDownloader(NewFetcher(), NewResolver(nuget.New(server.URL+"/v3", nil)), WithConcurrency(1))
	results, err := d.Download(context.Background(), []closure.Identity{
		{ID: "Serilog", Version: "3.1.0"},
		{ID: "System.Memory", Version: "4.5.5"},
	}, dir)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if !results[0].Skipped || results[0].Size != int64(len(same)) {
		t.Errorf("expected serilog to be kept, got %+v", results[0])
	}
	if results[1].Skipped {
		t.Errorf("expected a size mismatch to be downloaded again, got %+v", results[1])
	}
	data, _ := os.ReadFile(results[1].Path)
	if string(data) != "contents of system.memory.4.5.5.nupkg" {
		t.Errorf("unexpected contents %q", data)
	}
	if heads.Load() != 2 || gets.Load() != 1 {
		t.Errorf("expected 2 HEAD and 1 GET requests, got %d and %d", heads.Load(), gets.Load())
	}
}
