package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "oncall",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "path", "status"},
)

var AlertsRaisedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oncall",
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Total number of alerts raised, by priority.",
	},
	[]string{"priority"},
)

var AlertsAcknowledgedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oncall",
		Subsystem: "alerts",
		Name:      "acknowledged_total",
		Help:      "Total number of alerts acknowledged, by result.",
	},
	[]string{"result"},
)

var AlertsExhaustedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "oncall",
		Subsystem: "alerts",
		Name:      "exhausted_total",
		Help:      "Total number of alerts that escalated through every level with no acknowledgement.",
	},
)

var EscalationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oncall",
		Subsystem: "alerts",
		Name:      "escalations_total",
		Help:      "Total number of level-to-level escalations, by the level escalated into.",
	},
	[]string{"level"},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "oncall",
		Subsystem: "notify",
		Name:      "dispatched_total",
		Help:      "Total number of assignment notifications dispatched, by channel.",
	},
	[]string{"channel"},
)

// All returns every oncall-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		AlertsRaisedTotal,
		AlertsAcknowledgedTotal,
		AlertsExhaustedTotal,
		EscalationsTotal,
		NotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors and every oncall-specific metric registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
