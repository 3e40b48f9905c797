package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// Provider fetches the raw items for a dataset key and runs them through
// [Ingest]. A fetch failure is terminal for that request — there is no
// retry policy here; callers surface the error to the learner.
type Provider interface {
	Fetch(ctx context.Context, key string) ([]Item, error)
}

// DirProvider loads datasets from a directory, trying "<key>.yaml" then
// "<key>.json". Both formats are decoded with the YAML decoder (YAML is a
// superset of JSON, and legacy datasets ship as JSON).
type DirProvider struct {
	dir string
}

// NewDirProvider returns a provider rooted at dir.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// Fetch implements [Provider].
func (p *DirProvider) Fetch(_ context.Context, key string) ([]Item, error) {
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".json"} {
		data, err = os.ReadFile(filepath.Join(p.dir, key+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q from %q: %w", key, p.dir, err)
	}
	return decode(key, data)
}

// HTTPProvider loads datasets from a remote base URL ("<base>/<key>.json").
// One attempt per request; failures surface to the caller unretried.
// Concurrent fetches of the same key share a single request: session
// bootstraps tend to arrive in bursts after a deploy.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	group   singleflight.Group
}

// NewHTTPProvider returns a provider fetching from baseURL with the given
// per-request timeout (0 means 10s).
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch implements [Provider].
func (p *HTTPProvider) Fetch(ctx context.Context, key string) ([]Item, error) {
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.fetch(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Item), nil
}

func (p *HTTPProvider) fetch(ctx context.Context, key string) ([]Item, error) {
	u, err := url.JoinPath(p.baseURL, key+".json")
	if err != nil {
		return nil, fmt.Errorf("dataset: build url for %q: %w", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dataset: build request for %q: %w", key, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset: fetch %q: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset: fetch %q: unexpected status %d", key, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dataset: read body for %q: %w", key, err)
	}
	return decode(key, data)
}

// decode unmarshals raw file content into loosely-typed items and ingests
// them into the canonical shape.
func decode(key string, data []byte) ([]Item, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dataset: decode %q: %w", key, err)
	}
	return Ingest(key, raw)
}
