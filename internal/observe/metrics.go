// Package observe provides observability primitives for the voxlink client:
// OpenTelemetry metrics with a Prometheus exporter bridge and trace helpers
// for the connection and playback paths.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all voxlink metrics.
const meterName = "github.com/voxlink/voxlink"

// Metrics holds all OTel metric instruments for the client. All fields are
// safe for concurrent use.
type Metrics struct {
	// FramesSent counts outbound audio frames. Use with attribute:
	//   attribute.String("kind", "speech"|"silence"|"keepalive")
	FramesSent metric.Int64Counter

	// RepliesCompleted counts finalized streaming replies.
	RepliesCompleted metric.Int64Counter

	// TTSBuffers counts inbound TTS audio buffers by container format.
	TTSBuffers metric.Int64Counter

	// PipelineErrors counts classified errors. Use with attribute:
	//   attribute.String("type", ...)
	PipelineErrors metric.Int64Counter

	// RetryAttempts counts scheduled retries by error type.
	RetryAttempts metric.Int64Counter

	// ConnectDuration tracks WebSocket connection establishment latency.
	ConnectDuration metric.Float64Histogram

	// SegmentDuration tracks committed speech-segment lengths.
	SegmentDuration metric.Float64Histogram

	// PlaybackDuration tracks per-buffer TTS playback time.
	PlaybackDuration metric.Float64Histogram

	// ActiveSessions tracks live transport sessions.
	ActiveSessions metric.Int64UpDownCounter

	// PlaybackQueueDepth tracks buffered TTS payloads awaiting playback.
	PlaybackQueueDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram boundaries (seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("voxlink.frames.sent",
		metric.WithDescription("Outbound audio frames by kind."),
	); err != nil {
		return nil, err
	}
	if met.RepliesCompleted, err = m.Int64Counter("voxlink.replies.completed",
		metric.WithDescription("Finalized streaming AI replies."),
	); err != nil {
		return nil, err
	}
	if met.TTSBuffers, err = m.Int64Counter("voxlink.tts.buffers",
		metric.WithDescription("Inbound TTS audio buffers by container format."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("voxlink.errors",
		metric.WithDescription("Classified pipeline errors by type."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("voxlink.retries",
		metric.WithDescription("Scheduled retry attempts by error type."),
	); err != nil {
		return nil, err
	}

	if met.ConnectDuration, err = m.Float64Histogram("voxlink.connect.duration",
		metric.WithDescription("WebSocket connection establishment latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("voxlink.segment.duration",
		metric.WithDescription("Committed speech-segment length."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxlink.playback.duration",
		metric.WithDescription("Per-buffer TTS playback time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlink.active_sessions",
		metric.WithDescription("Live transport sessions."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackQueueDepth, err = m.Int64UpDownCounter("voxlink.playback.queue_depth",
		metric.WithDescription("TTS payloads awaiting playback."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// RecordFrame increments the outbound-frame counter for the given kind.
func (m *Metrics) RecordFrame(ctx context.Context, kind string) {
	m.FramesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordError increments the pipeline-error counter for the given type.
func (m *Metrics) RecordError(ctx context.Context, errType string) {
	m.PipelineErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errType)))
}

// RecordRetry increments the retry counter for the given error type.
func (m *Metrics) RecordRetry(ctx context.Context, errType string) {
	m.RetryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errType)))
}

// RecordTTSBuffer increments the TTS-buffer counter for a container format.
func (m *Metrics) RecordTTSBuffer(ctx context.Context, format string) {
	m.TTSBuffers.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}
