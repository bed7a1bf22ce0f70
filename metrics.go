package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report engine activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	eventsReceived     *prometheus.CounterVec
	intentsSent        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	serverErrors       *prometheus.CounterVec
	responsesActive    prometheus.Gauge
	responsesDone      *prometheus.CounterVec
	audioBytesSent     prometheus.Counter
	audioBytesReceived prometheus.Counter
}

// NewMetrics constructs and registers the collectors. A nil registerer means
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns, sub = "realtime", "client"
	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_received_total",
			Help:      "Server events received, by type.",
		}, []string{"type"}),
		intentsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "intents_sent_total",
			Help:      "Client intents written to the transport, by type.",
		}, []string{"type"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "validation_failures_total",
			Help:      "Intents rejected locally before reaching the wire.",
		}, []string{"type"}),
		serverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "server_errors_total",
			Help:      "Error events reported by the server, by error type.",
		}, []string{"error_type"}),
		responsesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "responses_active",
			Help:      "Responses currently in progress.",
		}),
		responsesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "responses_done_total",
			Help:      "Finished responses, by terminal status.",
		}, []string{"status"}),
		audioBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "input_audio_bytes_total",
			Help:      "Decoded input audio bytes appended.",
		}),
		audioBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "output_audio_bytes_total",
			Help:      "Decoded output audio bytes received.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.eventsReceived, m.intentsSent, m.validationFailures, m.serverErrors,
		m.responsesActive, m.responsesDone, m.audioBytesSent, m.audioBytesReceived,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) eventReceived(t string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(t).Inc()
}

func (m *Metrics) intentSent(t string) {
	if m == nil {
		return
	}
	m.intentsSent.WithLabelValues(t).Inc()
}

func (m *Metrics) validationFailed(t string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(t).Inc()
}

func (m *Metrics) serverError(errType string) {
	if m == nil {
		return
	}
	m.serverErrors.WithLabelValues(errType).Inc()
}

func (m *Metrics) setActiveResponses(n int) {
	if m == nil {
		return
	}
	m.responsesActive.Set(float64(n))
}

func (m *Metrics) responseDone(status string) {
	if m == nil {
		return
	}
	m.responsesDone.WithLabelValues(status).Inc()
}

func (m *Metrics) inputAudio(n int) {
	if m == nil {
		return
	}
	m.audioBytesSent.Add(float64(n))
}

func (m *Metrics) outputAudio(n int) {
	if m == nil {
		return
	}
	m.audioBytesReceived.Add(float64(n))
}
