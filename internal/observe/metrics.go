// Package observe provides application-wide observability primitives for
// listen-ES: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all listen-ES metrics.
const meterName = "github.com/7spvzk7dmv-jpg/listen-ES"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Drill loop ---

	// Attempts counts graded answers. Use with attributes:
	//   attribute.String("dataset", ...), attribute.String("outcome", "hit"|"miss")
	Attempts metric.Int64Counter

	// AttemptScore tracks the similarity score of each graded answer.
	AttemptScore metric.Float64Histogram

	// LevelChanges counts level advances and retreats. Use with attribute:
	//   attribute.String("direction", "advance"|"retreat")
	LevelChanges metric.Int64Counter

	// --- Persistence ---

	// PersistenceSaves counts writes per backend. Use with attributes:
	//   attribute.String("backend", "remote"|"cache"), attribute.String("status", ...)
	PersistenceSaves metric.Int64Counter

	// PersistenceFallbacks counts loads served from the local cache because
	// the remote store was unavailable. Use with attribute:
	//   attribute.String("key", ...)
	PersistenceFallbacks metric.Int64Counter

	// --- Speech providers ---

	// SpeechRequests counts TTS and STT provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "tts"|"stt"),
	//   attribute.String("status", ...)
	SpeechRequests metric.Int64Counter

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveCaptures tracks live speech captures. The session controller
	// keeps this at most 1 per learner.
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets covers the similarity score range with extra resolution
// around the grading thresholds.
var scoreBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Attempts, err = m.Int64Counter("listenes.attempts",
		metric.WithDescription("Total graded answers by dataset and outcome."),
	); err != nil {
		return nil, err
	}
	if met.AttemptScore, err = m.Float64Histogram("listenes.attempt.score",
		metric.WithDescription("Similarity score of graded answers."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LevelChanges, err = m.Int64Counter("listenes.level.changes",
		metric.WithDescription("Level ladder movements by direction."),
	); err != nil {
		return nil, err
	}

	if met.PersistenceSaves, err = m.Int64Counter("listenes.persistence.saves",
		metric.WithDescription("Persistence writes by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.PersistenceFallbacks, err = m.Int64Counter("listenes.persistence.fallbacks",
		metric.WithDescription("Loads served from the local cache because the remote was unavailable."),
	); err != nil {
		return nil, err
	}

	if met.SpeechRequests, err = m.Int64Counter("listenes.speech.requests",
		metric.WithDescription("Speech provider calls by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("listenes.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveCaptures, err = m.Int64UpDownCounter("listenes.active_captures",
		metric.WithDescription("Number of live speech captures."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("listenes.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt records a graded answer with its similarity score.
func (m *Metrics) RecordAttempt(ctx context.Context, dataset string, correct bool, score float64) {
	outcome := "miss"
	if correct {
		outcome = "hit"
	}
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("dataset", dataset),
			attribute.String("outcome", outcome),
		),
	)
	m.AttemptScore.Record(ctx, score,
		metric.WithAttributes(attribute.String("dataset", dataset)),
	)
}

// RecordLevelChange records a ladder movement.
func (m *Metrics) RecordLevelChange(ctx context.Context, direction string) {
	m.LevelChanges.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordPersistenceSave records a persistence write outcome for one backend.
func (m *Metrics) RecordPersistenceSave(ctx context.Context, backend, status string) {
	m.PersistenceSaves.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordPersistenceFallback records a load served from the local cache.
func (m *Metrics) RecordPersistenceFallback(ctx context.Context, key string) {
	m.PersistenceFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("key", key)),
	)
}

// RecordSpeechRequest records a speech provider call.
func (m *Metrics) RecordSpeechRequest(ctx context.Context, provider, kind, status string) {
	m.SpeechRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}
