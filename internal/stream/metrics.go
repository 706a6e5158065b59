package stream

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the stream client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	bufferedMessages  prometheus.Gauge
	connectionState   prometheus.Gauge
	transcriptLength  prometheus.Gauge
}

// NewMetrics creates and registers stream metrics. Returns nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total well-formed frames received, by event type",
		}, []string{"type"}),

		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "frames_dropped_total",
			Help:      "Total frames dropped at the wire boundary",
		}, []string{"reason"}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Total scheduled reconnection attempts",
		}),

		bufferedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "buffered_messages",
			Help:      "Messages held while the stream is paused",
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)",
		}),

		transcriptLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threadsim",
			Subsystem: "stream",
			Name:      "transcript_length",
			Help:      "Entries in the merged transcript",
		}),
	}

	reg.MustRegister(
		m.framesReceived,
		m.framesDropped,
		m.reconnectAttempts,
		m.bufferedMessages,
		m.connectionState,
		m.transcriptLength,
	)
	return m
}

func (m *Metrics) frameReceived(typ string) {
	if m != nil {
		m.framesReceived.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) frameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) setBuffered(n int) {
	if m != nil {
		m.bufferedMessages.Set(float64(n))
	}
}

func (m *Metrics) setState(s ConnState) {
	if m != nil {
		m.connectionState.Set(float64(s))
	}
}

func (m *Metrics) setTranscriptLength(n int) {
	if m != nil {
		m.transcriptLength.Set(float64(n))
	}
}
