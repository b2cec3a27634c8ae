// Package observability holds the Prometheus instrumentation for the
// voice service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports. Collectors are
// registered on the default registry at construction.
type Metrics struct {
	ActiveSessions     *prometheus.GaugeVec
	Turns              *prometheus.CounterVec
	TurnDuration       *prometheus.HistogramVec
	TranscodeFailures  prometheus.Counter
	SpeechDuration     *prometheus.HistogramVec
	Submissions        *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec
	HandshakeFailures  *prometheus.CounterVec
	CapacityRejections prometheus.Counter
}

// NewMetrics registers the collectors on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the collectors on a specific registerer.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Currently connected voice sessions by transport.",
		}, []string{"transport"}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_turns_total",
			Help: "Completed conversation turns by endpoint and outcome.",
		}, []string{"endpoint", "status"}),

		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_turn_duration_seconds",
			Help:    "End-to-end latency of one conversation turn.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"endpoint"}),

		TranscodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_transcode_failures_total",
			Help: "Audio conversions that failed or timed out.",
		}),

		SpeechDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_speech_request_duration_seconds",
			Help:    "Latency of speech engine requests by operation.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_survey_submissions_total",
			Help: "Survey submissions to the backend by outcome.",
		}, []string{"status"}),

		RateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_ratelimit_rejections_total",
			Help: "Connections refused by the per-client rate limiter.",
		}, []string{"endpoint"}),

		HandshakeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_handshake_failures_total",
			Help: "Telephony handshakes rejected before session setup.",
		}, []string{"reason"}),

		CapacityRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_capacity_rejections_total",
			Help: "Connections refused because the session cap was reached.",
		}),
	}
}
