// Package metrics exposes Prometheus instrumentation for the voice gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the gateway records into.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	SessionsFinalized prometheus.Counter
	SessionErrors     *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	SessionDuration   prometheus.Histogram

	FramesForwarded prometheus.Counter
	BlobBytes       prometheus.Histogram

	PollAttempts          prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	TranscriptLength      prometheus.Histogram
}

// New creates and registers all gateway metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all gateway metrics on reg. Tests pass a fresh registry
// so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_sessions_finalized_total",
			Help: "Total number of sessions that delivered a final transcript",
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicegate_session_errors_total",
			Help: "Total number of sessions ended by an error, by reason",
		}, []string{"reason"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicegate_active_sessions",
			Help: "Current number of live recording sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_session_duration_seconds",
			Help:    "Recording session duration from start gesture to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_frames_forwarded_total",
			Help: "Total number of audio frames forwarded to the streaming backend",
		}),
		BlobBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_blob_bytes",
			Help:    "Size of uploaded recording blobs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		PollAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicegate_poll_attempts_total",
			Help: "Total number of result poll requests issued",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_transcription_duration_seconds",
			Help:    "Time from submission to final transcript or failure",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		TranscriptLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicegate_transcript_length_chars",
			Help:    "Length of delivered final transcripts in characters",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// RecordSessionStart marks a new live session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnd marks a session leaving the live set.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordFinalTranscript records a successful delivery.
func (m *Metrics) RecordFinalTranscript(length int) {
	m.SessionsFinalized.Inc()
	m.TranscriptLength.Observe(float64(length))
}

// RecordSessionError records a terminal failure by reason label.
func (m *Metrics) RecordSessionError(reason string) {
	m.SessionErrors.WithLabelValues(reason).Inc()
}
