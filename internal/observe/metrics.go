// Package observe provides application-wide observability primitives for the
// trigger mic: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all trigger mic metrics.
const meterName = "github.com/MrWong99/triggermic"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecognizeDuration tracks speech recognition latency per segment. Use
	// with attributes:
	//   attribute.String("engine", ...), attribute.String("status", ...)
	RecognizeDuration metric.Float64Histogram

	// Segments counts resolved segments. Use with attribute:
	//   attribute.String("reason", "silence"|"overflow"|"end")
	Segments metric.Int64Counter

	// Triggers counts segments whose transcript contained the trigger word.
	Triggers metric.Int64Counter

	// ChunksForwarded counts chunks handed to downstream consumers.
	ChunksForwarded metric.Int64Counter

	// RecognizerErrors counts failed recognitions. Use with attribute:
	//   attribute.String("engine", ...)
	RecognizerErrors metric.Int64Counter

	// ChunksMisaligned counts upstream chunks with an odd byte length.
	ChunksMisaligned metric.Int64Counter

	// ActiveSessions tracks the number of live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// offline recognition of short utterances.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognizeDuration, err = m.Float64Histogram("triggermic.recognize.duration",
		metric.WithDescription("Latency of speech recognition per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Segments, err = m.Int64Counter("triggermic.segments",
		metric.WithDescription("Total resolved speech segments by reason."),
	); err != nil {
		return nil, err
	}
	if met.Triggers, err = m.Int64Counter("triggermic.triggers",
		metric.WithDescription("Total segments that contained the trigger word."),
	); err != nil {
		return nil, err
	}
	if met.ChunksForwarded, err = m.Int64Counter("triggermic.chunks.forwarded",
		metric.WithDescription("Total audio chunks forwarded downstream."),
	); err != nil {
		return nil, err
	}

	if met.RecognizerErrors, err = m.Int64Counter("triggermic.recognizer.errors",
		metric.WithDescription("Total failed recognitions by engine."),
	); err != nil {
		return nil, err
	}
	if met.ChunksMisaligned, err = m.Int64Counter("triggermic.chunks.misaligned",
		metric.WithDescription("Total upstream chunks with an odd byte length."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("triggermic.active_sessions",
		metric.WithDescription("Number of live streaming sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("triggermic.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// RecordSegment records a resolved segment with its resolution reason.
func (m *Metrics) RecordSegment(ctx context.Context, reason string) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRecognition records recognition latency and, on failure, increments
// the error counter.
func (m *Metrics) RecordRecognition(ctx context.Context, engine string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecognizerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
	m.RecognizeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
}
