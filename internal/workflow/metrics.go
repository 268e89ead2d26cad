package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	actions      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	hookFailures *prometheus.CounterVec
	bulkItems    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctrack",
			Subsystem: "workflow",
			Name:      "actions_total",
			Help:      "Workflow actions by action and outcome kind.",
		}, []string{"action", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doctrack",
			Subsystem: "workflow",
			Name:      "action_duration_seconds",
			Help:      "Time spent inside the unit of work of an action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctrack",
			Subsystem: "workflow",
			Name:      "hook_failures_total",
			Help:      "Post-commit hook failures by hook.",
		}, []string{"hook"}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doctrack",
			Subsystem: "workflow",
			Name:      "bulk_items_total",
			Help:      "Bulk items by action and outcome.",
		}, []string{"action", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.actions, m.duration, m.hookFailures, m.bulkItems)
	}
	return m
}

func (m *Metrics) observeAction(action Action, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	m.actions.WithLabelValues(string(action), result).Inc()
	m.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}

func (m *Metrics) hookFailed(hook string) {
	if m == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

func (m *Metrics) observeBulk(action Action, ok, failed int) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(string(action), "ok").Add(float64(ok))
	m.bulkItems.WithLabelValues(string(action), "failed").Add(float64(failed))
}
