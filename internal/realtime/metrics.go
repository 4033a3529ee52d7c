package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the ambient prometheus gauges/counters the reconnection
// coordinator exposes (SPEC_FULL.md AMBIENT STACK "Metrics"), instrumented
// the way the teacher instruments consumer shard health.
type Metrics struct {
	ChannelConnected   *prometheus.GaugeVec
	BreakerState       *prometheus.GaugeVec
	ReconnectsTotal    prometheus.Counter
	UnrecoverableTotal prometheus.Counter
}

// NewMetrics registers the coordinator's gauges/counters against reg,
// typically the caller's prometheus.NewRegistry(). A nil reg skips
// registration entirely; the metrics are still created and updated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChannelConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rundown_core", Subsystem: "realtime", Name: "channel_connected",
			Help: "1 if the named channel is currently connected, else 0.",
		}, []string{"document", "channel"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rundown_core", Subsystem: "realtime", Name: "breaker_state",
			Help: "Per-channel circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}, []string{"document", "channel"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rundown_core", Subsystem: "realtime", Name: "reconnects_total",
			Help: "Total reconnection pipeline runs.",
		}),
		UnrecoverableTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rundown_core", Subsystem: "realtime", Name: "unrecoverable_total",
			Help: "Total times the coordinator escalated to unrecoverable.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ChannelConnected, m.BreakerState, m.ReconnectsTotal, m.UnrecoverableTotal)
	}
	return m
}

func breakerStateValue(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}
