package telemetry

import "github.com/prometheus/client_golang/prometheus"

// NewRegistry returns a fresh prometheus registry for one process, rather
// than reusing the global DefaultRegisterer, so cmd/rundown-core can run
// multiple engines in tests without duplicate-registration panics.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
