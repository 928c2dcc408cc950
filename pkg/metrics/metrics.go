// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments call sessions and generations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive            prometheus.Gauge
	sessionsTotal             prometheus.Counter
	generationsTotal          prometheus.Counter
	interruptionsTotal        prometheus.Counter
	upstreamErrorsTotal       *prometheus.CounterVec
	malformedMessagesTotal    prometheus.Counter
	duplicateConnectionsTotal prometheus.Counter
	chunksStreamedTotal       prometheus.Counter
	firstTokenLatency         prometheus.Histogram
}

// New creates metrics registered against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callbridge_sessions_active",
			Help: "Number of call sessions currently connected",
		}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_sessions_total",
			Help: "Total number of call sessions accepted",
		}),
		generationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_generations_total",
			Help: "Total number of response generations started",
		}),
		interruptionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_interruptions_total",
			Help: "Total number of generations cancelled by barge-in",
		}),
		upstreamErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_upstream_errors_total",
			Help: "Total upstream completion failures by reason",
		}, []string{"reason"}),
		malformedMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_malformed_messages_total",
			Help: "Total inbound frames dropped as malformed",
		}),
		duplicateConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_duplicate_connections_total",
			Help: "Total connections rejected because the call id was live",
		}),
		chunksStreamedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_response_chunks_total",
			Help: "Total response chunks streamed to the platform",
		}),
		firstTokenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "callbridge_first_token_seconds",
			Help:    "Latency from generation start to first upstream token",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// SessionOpened records a new connected session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed records a torn-down session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// GenerationStarted records a generation kickoff.
func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.generationsTotal.Inc()
}

// GenerationInterrupted records a barge-in cancellation.
func (m *Metrics) GenerationInterrupted() {
	if m == nil {
		return
	}
	m.interruptionsTotal.Inc()
}

// UpstreamError records a completion failure by reason code.
func (m *Metrics) UpstreamError(reason string) {
	if m == nil {
		return
	}
	m.upstreamErrorsTotal.WithLabelValues(reason).Inc()
}

// MalformedMessage records a dropped inbound frame.
func (m *Metrics) MalformedMessage() {
	if m == nil {
		return
	}
	m.malformedMessagesTotal.Inc()
}

// DuplicateConnection records a rejected second connection.
func (m *Metrics) DuplicateConnection() {
	if m == nil {
		return
	}
	m.duplicateConnectionsTotal.Inc()
}

// ChunkStreamed records one outbound response chunk.
func (m *Metrics) ChunkStreamed() {
	if m == nil {
		return
	}
	m.chunksStreamedTotal.Inc()
}

// FirstToken records the latency to the first token of a generation.
func (m *Metrics) FirstToken(d time.Duration) {
	if m == nil {
		return
	}
	m.firstTokenLatency.Observe(d.Seconds())
}
