// Package app wires all listen-ES subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithStore, WithDatasets).
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/config"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/dataset"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/health"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/httpapi"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore/cache"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/learnerstore/postgres"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/observe"
	"github.com/7spvzk7dmv-jpg/listen-ES/internal/session"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/stt"
	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts"
)

// Providers holds one interface value per speech slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	TTS tts.Provider
	STT stt.Provider

	// TTSName and STTName label speech metrics (e.g. "google", "deepgram").
	TTSName string
	STTName string
}

// App owns all subsystem lifetimes for the listen-ES server.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics  *observe.Metrics
	gateway  *learnerstore.Gateway
	datasets dataset.Provider
	manager  *session.Manager
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a persistence gateway instead of creating one from config.
func WithStore(g *learnerstore.Gateway) Option {
	return func(a *App) { a.gateway = g }
}

// WithDatasets injects a dataset provider instead of creating one from config.
func WithDatasets(p dataset.Provider) Option {
	return func(a *App) { a.datasets = p }
}

// WithMetrics injects a metrics set instead of the default one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.initDatasets()

	a.manager = session.NewManager(session.ManagerConfig{
		Store:       a.gateway,
		Datasets:    a.datasets,
		DatasetKeys: cfg.Datasets.Keys,
		Locale:      cfg.Datasets.Locale,
		TTS:         providers.TTS,
		STT:         providers.STT,
		TTSName:     providers.TTSName,
		STTName:     providers.STTName,
		Metrics:     a.metrics,
	})
	a.closers = append(a.closers, func() error {
		a.manager.Close()
		return nil
	})

	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore sets up the persistence gateway: SQLite cache always, PostgreSQL
// remote when a DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.gateway != nil {
		return nil // injected
	}

	local, err := cache.Open(a.cfg.Persistence.CachePath)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, local.Close)

	var remote learnerstore.Remote
	if dsn := a.cfg.Persistence.PostgresDSN; dsn != "" {
		store, err := postgres.New(ctx, dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		remote = store
		slog.Info("remote progress store connected")
	} else {
		slog.Info("running with local progress cache only")
	}

	gw, err := learnerstore.NewGateway(learnerstore.Config{
		Remote:    remote,
		Cache:     local,
		OpTimeout: a.cfg.Persistence.OpTimeout,
		Metrics:   a.metrics,
	})
	if err != nil {
		return err
	}
	a.gateway = gw
	return nil
}

// initDatasets picks the dataset provider from config.
func (a *App) initDatasets() {
	if a.datasets != nil {
		return // injected
	}
	if a.cfg.Datasets.Dir != "" {
		a.datasets = dataset.NewDirProvider(a.cfg.Datasets.Dir)
		return
	}
	a.datasets = dataset.NewHTTPProvider(a.cfg.Datasets.BaseURL, 10*time.Second)
}

// initServer assembles the HTTP mux: API routes, health probes, and the
// Prometheus scrape endpoint, all behind the tracing middleware.
func (a *App) initServer() {
	mux := http.NewServeMux()

	httpapi.New(a.manager).Register(mux)

	checkers := []health.Checker{
		{
			Name: "datasets",
			Check: func(ctx context.Context) error {
				_, err := a.datasets.Fetch(ctx, a.cfg.Datasets.Keys[0])
				return err
			},
		},
	}
	if a.cfg.Persistence.PostgresDSN != "" {
		checkers = append(checkers, health.Checker{
			Name:  "remote-store",
			Soft:  true,
			Check: a.gateway.CheckRemote,
		})
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the fully assembled HTTP handler. Exposed for tests that
// drive the server through [net/http/httptest].
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled. It returns ctx's error on a clean
// signal-driven stop, or the listener error if serving fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "addr", a.cfg.Server.ListenAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and tears down subsystems in reverse-init
// order. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
