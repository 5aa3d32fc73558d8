package pasugo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the chat client's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connects       prometheus.Counter
	reconnects     prometheus.Counter
	closes         *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	malformed      prometheus.Counter
	queueDepth     prometheus.Gauge
	pollFailures   prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connects: f.NewCounter(prometheus.CounterOpts{
			Name: "pasugo_chat_connects_total",
			Help: "Sockets opened successfully.",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "pasugo_chat_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a drop.",
		}),
		closes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pasugo_chat_sessions_closed_total",
			Help: "Sessions that reached the closed state, by reason.",
		}, []string{"reason"}),
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pasugo_chat_frames_sent_total",
			Help: "Frames written to the socket, by event.",
		}, []string{"event"}),
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pasugo_chat_frames_received_total",
			Help: "Frames routed from the socket, by event.",
		}, []string{"event"}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Name: "pasugo_chat_frames_malformed_total",
			Help: "Inbound frames dropped because they could not be decoded.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pasugo_chat_outbox_depth",
			Help: "Frames waiting for the socket to open.",
		}),
		pollFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "pasugo_chat_task_poll_failures_total",
			Help: "Task status polls that failed and were retried next tick.",
		}),
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) reconnectScheduled() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) closed(reason CloseReason) {
	if m != nil {
		m.closes.WithLabelValues(string(reason)).Inc()
	}
}

func (m *Metrics) sent(event string) {
	if m != nil {
		m.framesSent.WithLabelValues(event).Inc()
	}
}

// received labels unknown events as "unknown" to bound cardinality.
func (m *Metrics) received(event string, known bool) {
	if m == nil {
		return
	}
	if !known {
		event = "unknown"
	}
	m.framesReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) malformedFrame() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Metrics) queued(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}

func (m *Metrics) pollFailed() {
	if m != nil {
		m.pollFailures.Inc()
	}
}
