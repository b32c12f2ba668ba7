package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/upmbridge/closure"
)

const defaultConcurrency = 8

// Downloaded describes an artifact written to disk.
type Downloaded struct {
	Identity closure.Identity
	URL      string
	Path     string
	Size     int64
	// Skipped is set when a file of the upstream size was already present.
	Skipped bool
}

// Downloader writes the artifacts of resolved packages to a directory.
type Downloader struct {
	fetcher     FetcherInterface
	resolver    *Resolver
	ecosystem   string
	concurrency int
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithConcurrency bounds the number of simultaneous downloads.
func WithConcurrency(n int) DownloaderOption {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithEcosystem sets the ecosystem identities are resolved in.
func WithEcosystem(ecosystem string) DownloaderOption {
	return func(d *Downloader) {
		d.ecosystem = ecosystem
	}
}

func NewDownloader(f FetcherInterface, r *Resolver, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		fetcher:     f,
		resolver:    r,
		ecosystem:   "nuget",
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches the artifact of every identity into dir. Results are in
// the order of ids. The first failure cancels the remaining downloads.
func (d *Downloader) Download(ctx context.Context, ids []closure.Identity, dir string) ([]Downloaded, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	results := make([]Downloaded, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := d.downloadOne(gctx, id, dir)
			if err != nil {
				return fmt.Errorf("downloading %s: %w", id, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Downloader) downloadOne(ctx context.Context, id closure.Identity, dir string) (Downloaded, error) {
	info, err := d.resolver.Resolve(ctx, d.ecosystem, id.ID, id.Version)
	if err != nil {
		return Downloaded{}, err
	}

	path := filepath.Join(dir, info.Filename)
	if size, ok := d.present(ctx, info.URL, path); ok {
		logger.Debugf("Keeping %s, already %d bytes", path, size)
		return Downloaded{Identity: id, URL: info.URL, Path: path, Size: size, Skipped: true}, nil
	}

	artifact, err := d.fetcher.Fetch(ctx, info.URL)
	if err != nil {
		return Downloaded{}, err
	}
	defer func() { _ = artifact.Body.Close() }()

	size, err := writeFile(path, artifact.Body)
	if err != nil {
		return Downloaded{}, err
	}
	return Downloaded{Identity: id, URL: info.URL, Path: path, Size: size}, nil
}

// present reports whether path already holds the artifact at url, judged by
// the size the upstream reports. Any doubt means a fresh download.
func (d *Downloader) present(ctx context.Context, url, path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	stat, err := d.fetcher.Stat(ctx, url)
	if err != nil || stat.Size < 0 || stat.Size != info.Size() {
		return 0, false
	}
	return info.Size(), true
}

// writeFile streams r into a temporary file in the same directory and
// renames it to path once complete.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("renaming to %s: %w", path, err)
	}
	return size, nil
}
