package session

import (
	"context"
	"sync"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/observe"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/stt"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts"
)

// ManagerConfig holds the shared dependencies handed to every session.
type ManagerConfig struct {
	Store       *learnerstore.Gateway
	Datasets    dataset.Provider
	DatasetKeys []string
	Locale      string
	TTS         tts.Provider
	STT         stt.Provider
	TTSName     string
	STTName     string
	Metrics     *observe.Metrics
}

// Manager hands out one [Controller] per learner, creating sessions lazily
// on first use. All exported methods are safe for concurrent use.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Controller
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Controller),
	}
}

// Get returns the learner's session, creating it on first use. learnerID
// may be empty for an anonymous local-only session.
func (m *Manager) Get(ctx context.Context, learnerID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[learnerID]; ok {
		return c, nil
	}
	c, err := New(ctx, Config{
		LearnerID:   learnerID,
		Store:       m.cfg.Store,
		Datasets:    m.cfg.Datasets,
		DatasetKeys: m.cfg.DatasetKeys,
		Locale:      m.cfg.Locale,
		TTS:         m.cfg.TTS,
		STT:         m.cfg.STT,
		TTSName:     m.cfg.TTSName,
		STTName:     m.cfg.STTName,
		Metrics:     m.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[learnerID] = c
	return c, nil
}

// Close stops speech activity on every session. Called during shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.sessions {
		c.Close()
	}
}
