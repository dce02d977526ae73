// Package prometheus provides Prometheus metrics for the voice session server.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voiceai"

// Status constants for metric labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// sessionsActive is a gauge of currently connected sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		},
	)

	// envelopesTotal is a counter of protocol envelopes by kind and direction.
	envelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Total number of protocol envelopes processed",
		},
		[]string{"kind", "direction"}, // direction: inbound, outbound
	)

	// turnDuration is a histogram of end-to-end turn duration.
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Histogram of end-to-end turn processing duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"input", "status"}, // input: text, audio; status: success, error
	)

	// providerRequestDuration is a histogram of external collaborator call duration.
	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of external provider API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"}, // operation: transcribe, generate, synthesize
	)

	// providerRequestsTotal is a counter of external collaborator calls.
	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of external provider API calls",
		},
		[]string{"provider", "operation", "status"},
	)

	// synthesisFallbacksTotal is a counter of fallback attempts after a
	// failed primary synthesis call.
	synthesisFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_fallbacks_total",
			Help:      "Total number of synthesis fallback attempts",
		},
		[]string{"result"}, // result: recovered, failed
	)

	// sentenceUnitsTotal is a counter of sentence units by delivery outcome.
	sentenceUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentence_units_total",
			Help:      "Total number of sentence units produced per turn",
		},
		[]string{"status"}, // status: delivered, skipped
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		envelopesTotal,
		turnDuration,
		providerRequestDuration,
		providerRequestsTotal,
		synthesisFallbacksTotal,
		sentenceUnitsTotal,
	}
)

// RecordSessionStart records a session connect.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session disconnect.
func RecordSessionEnd() {
	sessionsActive.Dec()
}

// RecordEnvelope records a processed envelope.
func RecordEnvelope(kind, direction string) {
	envelopesTotal.WithLabelValues(kind, direction).Inc()
}

// RecordTurn records a completed turn.
func RecordTurn(input, status string, durationSeconds float64) {
	turnDuration.WithLabelValues(input, status).Observe(durationSeconds)
}

// RecordProviderRequest records an external provider call.
func RecordProviderRequest(provider, operation, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider, operation).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordSynthesisFallback records a fallback attempt outcome.
func RecordSynthesisFallback(result string) {
	synthesisFallbacksTotal.WithLabelValues(result).Inc()
}

// RecordSentenceUnit records a sentence unit delivery outcome.
func RecordSentenceUnit(status string) {
	sentenceUnitsTotal.WithLabelValues(status).Inc()
}
