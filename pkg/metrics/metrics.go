// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamDuration tracks gateway streaming response duration.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "LLM gateway streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// DeltaEventsTotal tracks decoded stream delta events by channel.
	DeltaEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_delta_events_total",
			Help: "Decoded stream delta events",
		},
		[]string{"channel"},
	)

	// MalformedChunksTotal tracks stream payloads skipped as malformed.
	MalformedChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_malformed_chunks_total",
			Help: "Stream payloads skipped as malformed",
		},
	)

	// StreamsActive tracks in-flight gateway streams.
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Number of in-flight gateway streams",
		},
	)

	// MessagesTotal tracks messages appended to conversations.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages appended to conversations",
		},
		[]string{"role"},
	)

	// PersistFailuresTotal tracks best-effort persistence writes that failed.
	PersistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_persist_failures_total",
			Help: "Best-effort persistence writes that failed",
		},
		[]string{"operation"},
	)

	// AttachmentEncodeFailuresTotal tracks attachments dropped during encoding.
	AttachmentEncodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_attachment_encode_failures_total",
			Help: "Attachments dropped because their bytes could not be read",
		},
	)
)

// RecordStream records metrics for one completed gateway stream.
func RecordStream(model, status string, seconds float64) {
	StreamDuration.WithLabelValues(model, status).Observe(seconds)
}

// RecordDelta counts one decoded delta event on the given channel.
func RecordDelta(channel string) {
	DeltaEventsTotal.WithLabelValues(channel).Inc()
}

// RecordPersistFailure counts one failed best-effort write.
func RecordPersistFailure(operation string) {
	PersistFailuresTotal.WithLabelValues(operation).Inc()
}
