package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/httpapi"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/session"
	ttsmock "github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts/mock"
)

// ---- fakes ----

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Put(_ context.Context, scope string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[scope] = value
	return nil
}

func (c *memCache) Get(_ context.Context, scope string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[scope]
	return value, ok, nil
}

type memDatasets struct {
	sets map[string][]dataset.Item
}

func (d *memDatasets) Fetch(_ context.Context, key string) ([]dataset.Item, error) {
	items, ok := d.sets[key]
	if !ok {
		return nil, dataset.ErrEmptyDataset
	}
	return items, nil
}

// ---- helpers ----

// newServer builds a server over single-item datasets so the drawn item is
// always known.
func newServer(t *testing.T, mcfg session.ManagerConfig) *httptest.Server {
	t.Helper()
	if mcfg.Store == nil {
		gw, err := learnerstore.NewGateway(learnerstore.Config{Cache: newMemCache()})
		if err != nil {
			t.Fatalf("NewGateway: %v", err)
		}
		mcfg.Store = gw
	}
	if mcfg.Datasets == nil {
		mcfg.Datasets = &memDatasets{
			sets: map[string][]dataset.Item{
				"frases":   {{ID: "frases_0", Source: "Hola", Reference: "Oi", Level: "A1"}},
				"palavras": {{ID: "palavras_0", Source: "gato", Reference: "gato", Level: "A1"}},
			},
		}
	}
	if mcfg.DatasetKeys == nil {
		mcfg.DatasetKeys = []string{"frases", "palavras"}
	}
	manager := session.NewManager(mcfg)
	t.Cleanup(manager.Close)

	mux := http.NewServeMux()
	httpapi.New(manager).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, learnerID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if learnerID != "" {
		req.Header.Set("X-Learner-ID", learnerID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// ---- tests ----

func TestState_FreshSession(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	resp := do(t, srv, http.MethodGet, "/api/state", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := decode[session.Snapshot](t, resp)
	if snap.Level != "A1" {
		t.Errorf("level = %q, want A1", snap.Level)
	}
	if snap.DatasetKey != "frases" {
		t.Errorf("dataset = %q, want frases", snap.DatasetKey)
	}
	if snap.Item != nil {
		t.Errorf("fresh session should have no item on deck, got %+v", snap.Item)
	}
}

func TestNextThenCorrectAnswer(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	resp := do(t, srv, http.MethodPost, "/api/next", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d", resp.StatusCode)
	}
	item := decode[session.ItemView](t, resp)
	if item.Source != "Hola" {
		t.Fatalf("item.Source = %q", item.Source)
	}

	resp = do(t, srv, http.MethodPost, "/api/answer", "", `{"answer":"Oi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d", resp.StatusCode)
	}
	att := decode[session.Attempt](t, resp)
	if !att.Correct {
		t.Error("attempt should be correct")
	}
	if att.Hits != 1 {
		t.Errorf("hits = %d, want 1", att.Hits)
	}
}

func TestAnswerWithoutItemConflicts(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	resp := do(t, srv, http.MethodPost, "/api/answer", "", `{"answer":"Oi"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestInvalidBodyRejected(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	resp := do(t, srv, http.MethodPost, "/api/answer", "", `{"answer":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLearnerHeaderIsolatesSessions(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/next", "ana", "")
	resp := do(t, srv, http.MethodPost, "/api/answer", "ana", `{"answer":"Oi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodGet, "/api/state", "bruno", "")
	snap := decode[session.Snapshot](t, resp)
	if snap.Hits != 0 {
		t.Errorf("bruno hits = %d, want 0", snap.Hits)
	}

	resp = do(t, srv, http.MethodGet, "/api/state", "ana", "")
	snap = decode[session.Snapshot](t, resp)
	if snap.Hits != 1 {
		t.Errorf("ana hits = %d, want 1", snap.Hits)
	}
}

func TestSpeechGradesTranscript(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	resp := do(t, srv, http.MethodPost, "/api/speech", "", `{"transcript":"hola"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("speech status = %d", resp.StatusCode)
	}
	att := decode[session.Attempt](t, resp)
	if !att.Correct {
		t.Error("matching pronunciation should grade correct")
	}
}

func TestToggleDataset(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	resp := do(t, srv, http.MethodPost, "/api/dataset/toggle", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	snap := decode[session.Snapshot](t, resp)
	if snap.DatasetKey != "palavras" {
		t.Errorf("dataset = %q, want palavras", snap.DatasetKey)
	}
}

func TestExamModeHidesSourceUntilReveal(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/exam", "", `{"on":true}`)
	resp := do(t, srv, http.MethodPost, "/api/next", "", "")
	item := decode[session.ItemView](t, resp)
	if item.Source != "" {
		t.Errorf("exam mode should hide source, got %q", item.Source)
	}

	resp = do(t, srv, http.MethodPost, "/api/reveal", "", "")
	snap := decode[session.Snapshot](t, resp)
	if snap.Item == nil || snap.Item.Source != "Hola" {
		t.Errorf("reveal should expose source, got %+v", snap.Item)
	}
}

func TestResetClearsProgress(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	do(t, srv, http.MethodPost, "/api/answer", "", `{"answer":"Oi"}`)

	resp := do(t, srv, http.MethodPost, "/api/reset", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	snap := decode[session.Snapshot](t, resp)
	if snap.Hits != 0 || snap.Errors != 0 {
		t.Errorf("hits/errors = %d/%d, want 0/0", snap.Hits, snap.Errors)
	}
	if snap.Level != "A1" {
		t.Errorf("level = %q, want A1", snap.Level)
	}
}

func TestAudioReturnsClip(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{
		TTS: &ttsmock.Provider{Audio: []byte("mp3-bytes")},
	})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	resp := do(t, srv, http.MethodGet, "/api/audio", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", ct)
	}
}

func TestAudioWithoutProviderUnavailable(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	resp := do(t, srv, http.MethodGet, "/api/audio", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestCaptureWithoutProviderUnavailable(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	resp := do(t, srv, http.MethodPost, "/api/capture/start", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSpeakAccepted(t *testing.T) {
	t.Parallel()
	srv := newServer(t, session.ManagerConfig{
		TTS: &ttsmock.Provider{Audio: []byte("mp3-bytes")},
	})

	do(t, srv, http.MethodPost, "/api/next", "", "")
	resp := do(t, srv, http.MethodPost, "/api/speak", "", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}
