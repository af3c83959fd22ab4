package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmq-protocol/dmq-go/pkg/wire"
)

// Drop and error reasons used as metric labels.
const (
	reasonShort      = "short"
	reasonFrame      = "frame"
	reasonNoHandler  = "no_handler"
	reasonDecode     = "decode"
	reasonPanic      = "panic"
	reasonTypeChange = "handler_type"
)

// Metrics holds the session's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	acksSent       prometheus.Counter
	acksReceived   prometheus.Counter
	dropped        *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	sendErrors     prometheus.Counter
	dispatchTime   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmq",
				Subsystem: "client",
				Name:      "frames_sent_total",
				Help:      "Application frames sent, by message type.",
			},
			[]string{"type"},
		),
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmq",
				Subsystem: "client",
				Name:      "frames_received_total",
				Help:      "Application frames received, by message type.",
			},
			[]string{"type"},
		),
		acksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmq",
			Subsystem: "client",
			Name:      "acks_sent_total",
			Help:      "Acknowledgments sent.",
		}),
		acksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmq",
			Subsystem: "client",
			Name:      "acks_received_total",
			Help:      "Acknowledgments received.",
		}),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmq",
				Subsystem: "client",
				Name:      "frames_dropped_total",
				Help:      "Received frames discarded before dispatch.",
			},
			[]string{"reason"},
		),
		dispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dmq",
				Subsystem: "client",
				Name:      "dispatch_errors_total",
				Help:      "Frames that did not reach a handler or whose handler failed.",
			},
			[]string{"type", "reason"},
		),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmq",
			Subsystem: "client",
			Name:      "send_errors_total",
			Help:      "Failed sends.",
		}),
		dispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dmq",
			Subsystem: "client",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent decoding and handling one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesSent, m.framesReceived, m.acksSent, m.acksReceived,
		m.dropped, m.dispatchErrors, m.sendErrors, m.dispatchTime,
	}
}

func (m *Metrics) sent(id wire.RemoteID) {
	if m != nil {
		m.framesSent.WithLabelValues(id.String()).Inc()
	}
}

func (m *Metrics) received(id wire.RemoteID) {
	if m != nil {
		m.framesReceived.WithLabelValues(id.String()).Inc()
	}
}

func (m *Metrics) ackSent() {
	if m != nil {
		m.acksSent.Inc()
	}
}

func (m *Metrics) ackReceived() {
	if m != nil {
		m.acksReceived.Inc()
	}
}

func (m *Metrics) drop(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) dispatchError(id wire.RemoteID, reason string) {
	if m != nil {
		m.dispatchErrors.WithLabelValues(id.String(), reason).Inc()
	}
}

func (m *Metrics) sendError() {
	if m != nil {
		m.sendErrors.Inc()
	}
}

func (m *Metrics) observeDispatch(d time.Duration) {
	if m != nil {
		m.dispatchTime.Observe(d.Seconds())
	}
}
