// Package google implements tts.Provider against the Google Cloud
// Text-to-Speech REST API. Synthesized clips are cached on disk keyed by
// locale and text, so repeating a drill item never costs a second API call.
package google

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts"
)

const (
	endpoint       = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultTimeout = 10 * time.Second
	mimeMP3        = "audio/mpeg"
)

// Provider is a tts.Provider backed by Google Cloud TTS.
type Provider struct {
	apiKey   string
	cacheDir string
	endpoint string
	client   *http.Client

	// mu serializes API calls for the same uncached clip.
	mu sync.Mutex
}

// Option configures a [Provider].
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// New creates a Provider. cacheDir is created if missing; an empty cacheDir
// disables the disk cache.
func New(apiKey, cacheDir string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("google: create cache dir: %w", err)
		}
	}
	p := &Provider{
		apiKey:   apiKey,
		cacheDir: cacheDir,
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Synthesize returns MP3 audio for text in the given locale, serving from
// the disk cache when possible.
func (p *Provider) Synthesize(ctx context.Context, text, locale string) ([]byte, string, error) {
	cachePath := p.cachePath(text, locale)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, mimeMP3, nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check after the lock: a concurrent caller may have filled it.
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			return data, mimeMP3, nil
		}
	}

	audio, err := p.call(ctx, text, locale)
	if err != nil {
		return nil, "", err
	}
	if cachePath != "" {
		// Cache failures are not worth surfacing.
		_ = os.WriteFile(cachePath, audio, 0o644)
	}
	return audio, mimeMP3, nil
}

func (p *Provider) call(ctx context.Context, text, locale string) ([]byte, error) {
	reqBody := map[string]any{
		"input": map[string]string{"text": text},
		"voice": map[string]any{
			"languageCode": locale,
			"ssmlGender":   "FEMALE",
		},
		"audioConfig": map[string]string{"audioEncoding": "MP3"},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"?key="+p.apiKey, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("google: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: synthesize request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: synthesize returned %d: %s", resp.StatusCode, body)
	}

	var result struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("google: parse response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(result.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google: decode audio: %w", err)
	}
	return audio, nil
}

func (p *Provider) cachePath(text, locale string) string {
	if p.cacheDir == "" {
		return ""
	}
	h := sha256.Sum256([]byte(locale + ":" + text))
	return filepath.Join(p.cacheDir, hex.EncodeToString(h[:16])+".mp3")
}

var _ tts.Provider = (*Provider)(nil)
