// Package weights resolves model weights to local files, downloading them on first use.
package weights

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/platform/version"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

// Fetcher keeps weights under a local directory and downloads missing files from baseURL,
// normally domain.DefaultWeightsBaseURL. With an empty baseURL only pre-placed files are served. A failed download is not retried;
// the next Ensure call starts over.
type Fetcher struct {
	dir     string
	baseURL string
	client  *resty.Client

	group       singleflight.Group
	mu          sync.Mutex
	downloading map[domain.ModelName]struct{}
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithTransport replaces the HTTP transport used for downloads.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *Fetcher) {
		f.client.SetTransport(rt)
	}
}

func NewFetcher(dir, baseURL string, timeout time.Duration, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		dir:         dir,
		baseURL:     baseURL,
		client:      resty.New().SetTimeout(timeout).SetHeader("User-Agent", version.UserAgent()),
		downloading: make(map[domain.ModelName]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path is where the weights for spec live once fetched.
func (f *Fetcher) Path(spec domain.ModelSpec) string {
	return filepath.Join(f.dir, spec.WeightsFile)
}

// Ensure returns a readable local path for spec, downloading it if absent.
// Concurrent calls for the same model share one download.
func (f *Fetcher) Ensure(ctx context.Context, spec domain.ModelSpec) (string, error) {
	path := f.Path(spec)

	ok, err := nonEmptyFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", domain.ErrWeightFetch, path, err)
	}
	if ok {
		return path, nil
	}

	_, err, _ = f.group.Do(string(spec.Name), func() (any, error) {
		if ok, _ := nonEmptyFile(path); ok {
			return nil, nil
		}
		return nil, f.download(ctx, spec, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, spec domain.ModelSpec, path string) error {
	f.setDownloading(spec.Name, true)
	defer f.setDownloading(spec.Name, false)

	url, err := spec.SourceURL(f.baseURL)
	if err != nil {
		return fmt.Errorf("%w: %s missing and %v", domain.ErrWeightFetch, path, err)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrWeightFetch, f.dir, err)
	}

	part := path + ".part"
	start := time.Now()

	slog.Info("Downloading model weights", "model", spec.Name, "url", url)

	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(part).
		Get(url)
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("%w: %s: %v", domain.ErrWeightFetch, url, err)
	}
	if resp.IsError() {
		_ = os.Remove(part)
		return fmt.Errorf("%w: %s: status %d", domain.ErrWeightFetch, url, resp.StatusCode())
	}

	if ok, _ := nonEmptyFile(part); !ok {
		_ = os.Remove(part)
		return fmt.Errorf("%w: %s: empty body", domain.ErrWeightFetch, url)
	}

	if err := os.Rename(part, path); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrWeightFetch, part, err)
	}

	slog.Info("Model weights downloaded", "model", spec.Name, "path", path, "duration", time.Since(start))
	return nil
}

// Status reports whether spec's weights are present, being fetched, or missing.
func (f *Fetcher) Status(spec domain.ModelSpec) domain.WeightsState {
	f.mu.Lock()
	_, busy := f.downloading[spec.Name]
	f.mu.Unlock()
	if busy {
		return domain.WeightsDownloading
	}

	if ok, _ := nonEmptyFile(f.Path(spec)); ok {
		return domain.WeightsReady
	}
	return domain.WeightsNotFound
}

func (f *Fetcher) setDownloading(name domain.ModelName, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.downloading[name] = struct{}{}
	} else {
		delete(f.downloading, name)
	}
}

func nonEmptyFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// Noop satisfies the provider contract for runtimes that need no weight files.
type Noop struct {
	Dir string
}

func (n Noop) Ensure(_ context.Context, spec domain.ModelSpec) (string, error) {
	return filepath.Join(n.Dir, spec.WeightsFile), nil
}

func (n Noop) Status(domain.ModelSpec) domain.WeightsState {
	return domain.WeightsReady
}
