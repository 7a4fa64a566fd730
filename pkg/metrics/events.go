package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// BusMetrics counts in-process events and listener outcomes.
type BusMetrics struct {
	published *prometheus.CounterVec
	handled   *prometheus.CounterVec
}

func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	if reg == nil {
		return &BusMetrics{}
	}
	m := &BusMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the in-process bus.",
		}, []string{"event"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handlers_total",
			Help:      "Listener invocations by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	reg.MustRegister(m.published, m.handled)
	return m
}

func (m *BusMetrics) IncPublished(event string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *BusMetrics) IncHandled(event, outcome string) {
	if m == nil || m.handled == nil {
		return
	}
	m.handled.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}
