// Package learnerstore persists learner progress across a remote
// authoritative store and a local fallback cache.
//
// The [Gateway] is the single entry point. Saves are dual-writes: the
// remote store is attempted best-effort (behind a circuit breaker and an
// explicit per-operation timeout), and the local cache is always written,
// so the cache never drifts stale while the remote is healthy. Loads try
// the remote first and fall back to the cache. Remote unavailability is
// fully absorbed — it is never surfaced to the caller as an error.
//
// The price of absorbing remote failures is eventual rather than strong
// consistency: a remote write rejected after the local write succeeded
// leaves the two backends diverged until the next successful save. For a
// single learner with low write frequency this divergence is acceptable and
// part of the contract, not an oversight.
package learnerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/7spvzk7dmv-jpg/listen-ES/internal/observe"
)

// ErrNotFound is returned by [Gateway.Load] when neither backend holds a
// value for the key. Callers supply their own default.
var ErrNotFound = errors.New("learnerstore: key not found")

// defaultOpTimeout bounds each remote operation. Timeout expiry takes the
// same fallback path as an outright remote failure.
const defaultOpTimeout = 3 * time.Second

// Remote is the authoritative backend of record. Save must merge at key
// level: writing one key never disturbs sibling keys of the same learner
// record. Load returns [ErrNotFound] when the key is absent.
type Remote interface {
	Save(ctx context.Context, learnerID, key string, value []byte) error
	Load(ctx context.Context, learnerID, key string) ([]byte, error)
}

// Cache is the device-local fallback store. Implementations must be safe
// for concurrent use.
type Cache interface {
	Put(ctx context.Context, scope string, value []byte) error
	Get(ctx context.Context, scope string) (value []byte, ok bool, err error)
}

// Config holds the dependencies and knobs for a [Gateway].
type Config struct {
	// Remote is the authoritative store. Nil runs the gateway in
	// local-only mode (anonymous learner, no account).
	Remote Remote

	// Cache is the local fallback store. Required.
	Cache Cache

	// OpTimeout bounds each remote call. Zero means 3s.
	OpTimeout time.Duration

	// Metrics records save/fallback counters. Nil disables recording.
	Metrics *observe.Metrics
}

// Gateway coordinates the two persistence backends for all learners.
// All methods are safe for concurrent use; saves for the same learner are
// serialized to preserve the merge invariant under interleaving.
type Gateway struct {
	remote    Remote
	cache     Cache
	breaker   *breaker
	opTimeout time.Duration
	metrics   *observe.Metrics

	mu       sync.Mutex
	perSaver map[string]*sync.Mutex
}

// NewGateway creates a [Gateway] from cfg. cfg.Cache must be non-nil.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Cache == nil {
		return nil, errors.New("learnerstore: cache is required")
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &Gateway{
		remote:    cfg.Remote,
		cache:     cfg.Cache,
		breaker:   newBreaker("remote-store"),
		opTimeout: cfg.OpTimeout,
		metrics:   cfg.Metrics,
	}, nil
}

// Save writes value under key for learnerID. The remote write is
// best-effort; the cache write always happens. An error is returned only
// when both backends failed; a remote-only failure is absorbed.
func (g *Gateway) Save(ctx context.Context, learnerID, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("learnerstore: encode %q: %w", key, err)
	}

	lock := g.saverFor(learnerID)
	lock.Lock()
	defer lock.Unlock()

	var remoteErr error
	if g.remote != nil && learnerID != "" {
		remoteErr = g.breaker.do(func() error {
			opCtx, cancel := context.WithTimeout(ctx, g.opTimeout)
			defer cancel()
			return g.remote.Save(opCtx, learnerID, key, data)
		})
		g.recordSave("remote", remoteErr)
		if remoteErr != nil {
			slog.Warn("learnerstore: remote save failed, cache will carry the value",
				"learner", learnerID, "key", key, "err", remoteErr)
		}
	}

	cacheErr := g.cache.Put(ctx, scope(learnerID, key), data)
	g.recordSave("cache", cacheErr)
	if cacheErr != nil {
		if remoteErr != nil {
			return fmt.Errorf("learnerstore: save %q: remote (%v) and cache both failed: %w",
				key, remoteErr, cacheErr)
		}
		slog.Warn("learnerstore: cache write failed, remote holds the value",
			"learner", learnerID, "key", key, "err", cacheErr)
	}
	return nil
}

// Load reads key for learnerID into dst. The remote store is consulted
// first; on unavailability or absence the local cache is used. When neither
// backend holds the key, Load returns [ErrNotFound] and leaves dst
// untouched — callers fall back to their default value.
func (g *Gateway) Load(ctx context.Context, learnerID, key string, dst any) error {
	if g.remote != nil && learnerID != "" {
		var data []byte
		err := g.breaker.do(func() error {
			opCtx, cancel := context.WithTimeout(ctx, g.opTimeout)
			defer cancel()
			var loadErr error
			data, loadErr = g.remote.Load(opCtx, learnerID, key)
			return loadErr
		})
		switch {
		case err == nil:
			return json.Unmarshal(data, dst)
		case errors.Is(err, ErrNotFound):
			// Absent remotely; the cache may still hold a local-only value.
		default:
			g.recordFallback(key)
			slog.Debug("learnerstore: remote load failed, falling back to cache",
				"learner", learnerID, "key", key, "err", err)
		}
	}

	data, ok, err := g.cache.Get(ctx, scope(learnerID, key))
	if err != nil {
		slog.Warn("learnerstore: cache read failed",
			"learner", learnerID, "key", key, "err", err)
		return ErrNotFound
	}
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, dst)
}

// Degraded reports whether the remote store is currently being skipped
// because its circuit breaker is open. Feeds the readiness probe.
func (g *Gateway) Degraded() bool {
	return g.remote != nil && g.breaker.open()
}

// CheckRemote probes the remote store for the readiness endpoint. In
// local-only mode the probe passes trivially.
func (g *Gateway) CheckRemote(ctx context.Context) error {
	if g.remote == nil {
		return nil
	}
	if g.breaker.open() {
		return errors.New("remote store circuit open, serving from local cache")
	}
	return nil
}

// saverFor returns the per-learner save mutex, creating it on first use.
func (g *Gateway) saverFor(learnerID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.perSaver == nil {
		g.perSaver = make(map[string]*sync.Mutex)
	}
	m, ok := g.perSaver[learnerID]
	if !ok {
		m = &sync.Mutex{}
		g.perSaver[learnerID] = m
	}
	return m
}

func (g *Gateway) recordSave(backend string, err error) {
	if g.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordPersistenceSave(context.Background(), backend, status)
}

func (g *Gateway) recordFallback(key string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordPersistenceFallback(context.Background(), key)
}

// scope builds the cache key: namespaced by learner identity when one is
// known, bare when running anonymously.
func scope(learnerID, key string) string {
	if learnerID == "" {
		return key
	}
	return learnerID + "_" + key
}
