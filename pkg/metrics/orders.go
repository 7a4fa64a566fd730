package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks the cart to order to payment pipeline.
type OrderMetrics struct {
	created       prometheus.Counter
	paid          prometheus.Counter
	stockApplied  prometheus.Counter
	statusChanges *prometheus.CounterVec
	paymentTime   prometheus.Histogram
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created from carts.",
		}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_paid_total",
			Help:      "Orders settled by the payment simulator.",
		}),
		stockApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_stock_applied_total",
			Help:      "Orders whose stock decrement committed.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_changes_total",
			Help:      "Admin status transitions by target status.",
		}, []string{"status"}),
		paymentTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_payment_duration_seconds",
			Help:      "Time spent in the payment simulator.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 10},
		}),
	}
	reg.MustRegister(m.created, m.paid, m.stockApplied, m.statusChanges, m.paymentTime)
	return m
}

func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

func (m *OrderMetrics) ObservePaid(d time.Duration) {
	if m == nil || m.paid == nil {
		return
	}
	m.paid.Inc()
	m.paymentTime.Observe(d.Seconds())
}

func (m *OrderMetrics) IncStockApplied() {
	if m == nil || m.stockApplied == nil {
		return
	}
	m.stockApplied.Inc()
}

func (m *OrderMetrics) IncStatusChange(status string) {
	if m == nil || m.statusChanges == nil {
		return
	}
	m.statusChanges.WithLabelValues(normalizeLabel(status)).Inc()
}
