package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors of the capture service
type Metrics struct {
	// Capture metrics
	ActiveSessions  prometheus.Gauge
	Flushes         prometheus.Counter
	DecodeFailures  prometheus.Counter
	FlushDuration   prometheus.Histogram
	SpeechFlushes   prometheus.Counter
	Dispatches      prometheus.Counter
	DroppedRequests prometheus.Counter
	Boundaries      prometheus.Counter

	// Transcription metrics
	TranscriptionEvents *prometheus.CounterVec

	// Editor metrics
	EditorRuns *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxcap_active_sessions",
			Help: "Number of open capture sessions",
		}),
		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_flushes_total",
			Help: "Total number of non-empty recorder flushes analyzed",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_decode_failures_total",
			Help: "Total number of flushes discarded because decoding failed",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxcap_flush_duration_seconds",
			Help:    "Time spent decoding and analyzing one flush",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		SpeechFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_speech_flushes_total",
			Help: "Total number of flushes where speech was detected",
		}),
		Dispatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_dispatches_total",
			Help: "Total number of requests accepted by the transcription engine",
		}),
		DroppedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_dispatches_dropped_total",
			Help: "Total number of requests dropped because the engine was busy",
		}),
		Boundaries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voxcap_utterance_boundaries_total",
			Help: "Total number of utterance restarts forced by trailing silence",
		}),
		TranscriptionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxcap_transcription_events_total",
			Help: "Transcription engine events by status",
		}, []string{"status"}),
		EditorRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxcap_editor_runs_total",
			Help: "Transcript cleanup and summary runs by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// NewNop returns collectors bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordFlush records one analyzed flush
func (m *Metrics) RecordFlush(seconds float64, hasSpeech bool) {
	m.Flushes.Inc()
	m.FlushDuration.Observe(seconds)
	if hasSpeech {
		m.SpeechFlushes.Inc()
	}
}

// RecordDispatch records whether the engine took a request
func (m *Metrics) RecordDispatch(accepted bool) {
	if accepted {
		m.Dispatches.Inc()
		return
	}
	m.DroppedRequests.Inc()
}
