package save

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the ambient prometheus counters/gauges for the save
// coordinator (SPEC_FULL.md AMBIENT STACK "Metrics"), following the same
// registration shape as realtime.Metrics.
type Metrics struct {
	CellWritesTotal       *prometheus.CounterVec
	StructuralWritesTotal prometheus.Counter
	SaveFailuresTotal     *prometheus.CounterVec
	PendingSaves          prometheus.Gauge
}

// NewMetrics registers the coordinator's counters/gauges against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CellWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rundown_core", Subsystem: "save", Name: "cell_writes_total",
			Help: "Total cell writes attempted, labeled by outcome.",
		}, []string{"outcome"}),
		StructuralWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rundown_core", Subsystem: "save", Name: "structural_writes_total",
			Help: "Total structural writes committed.",
		}),
		SaveFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rundown_core", Subsystem: "save", Name: "failures_total",
			Help: "Total permanently failed saves, labeled by kind.",
		}, []string{"kind"}),
		PendingSaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rundown_core", Subsystem: "save", Name: "pending",
			Help: "Current number of writes not yet durably committed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CellWritesTotal, m.StructuralWritesTotal, m.SaveFailuresTotal, m.PendingSaves)
	}
	return m
}
