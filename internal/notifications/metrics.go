package notifications

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the dispatcher's collectors. A nil *Metrics records nothing.
type Metrics struct {
	queue      *prometheus.CounterVec
	deliveries *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctrack",
			Subsystem: "notifications",
			Name:      "queue_total",
			Help:      "Notifications offered to the delivery queue by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctrack",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Channel deliveries by channel and result (ok, failed, skipped).",
		}, []string{"channel", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.queue, m.deliveries)
	}
	return m
}

func (m *Metrics) queued() {
	if m == nil {
		return
	}
	m.queue.WithLabelValues("queued").Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.queue.WithLabelValues("dropped").Inc()
}

func (m *Metrics) delivered(channel string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) skipped(channel string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, "skipped").Inc()
}
