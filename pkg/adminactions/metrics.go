package adminactions

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	stateOverrides prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admin_gateway",
				Name:      "action_requests_total",
				Help:      "Admin action requests by action and outcome (status or error kind).",
			},
			[]string{"action", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "admin_gateway",
				Name:      "action_duration_seconds",
				Help:      "Time spent handling admin action requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "admin_gateway",
			Name:      "delegations_in_flight",
			Help:      "Calls to the orchestration subsystem currently running.",
		}),
		stateOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "admin_gateway",
			Name:      "state_overrides_total",
			Help:      "Forced vm_state overrides applied.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.inFlight, m.stateOverrides)
	}
	return m
}

func (m *Metrics) observe(action ActionName, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(action), outcome).Inc()
	m.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}

func (m *Metrics) delegationStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) delegationFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) stateOverridden() {
	if m != nil {
		m.stateOverrides.Inc()
	}
}
