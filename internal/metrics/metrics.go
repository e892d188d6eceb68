// Package metrics exposes the pipeline's Prometheus counters: events seen,
// filtered, and dropped per analyzer stage. A single Registry is
// constructed at startup and threaded into every component that wants to
// record something, mirroring the teacher's single shared logger pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every counter the pipeline records. It wraps a
// prometheus.Registerer so callers outside this package never import
// prometheus directly just to bump a counter.
type Registry struct {
	reg prometheus.Registerer

	EventsProcessed *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	FilterMatches   *prometheus.CounterVec
	AnalyzerErrors  *prometheus.CounterVec
}

// New registers the pipeline's counters against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// instances in one process) or prometheus.DefaultRegisterer for the
// process-global one. cmd/trace serves no /metrics endpoint; it builds its
// registry with NewUnregistered.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		reg: reg,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsight",
			Name:      "events_processed_total",
			Help:      "Events seen by each pipeline stage.",
		}, []string{"stage"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsight",
			Name:      "events_dropped_total",
			Help:      "Events dropped by each pipeline stage, by reason.",
		}, []string{"stage", "reason"}),
		FilterMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsight",
			Name:      "filter_matches_total",
			Help:      "Filter expression matches, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		AnalyzerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsight",
			Name:      "analyzer_errors_total",
			Help:      "Analyzer stage failures.",
		}, []string{"stage"}),
	}
	reg.MustRegister(r.EventsProcessed, r.EventsDropped, r.FilterMatches, r.AnalyzerErrors)
	return r
}

// NewUnregistered builds a Registry backed by a fresh, private
// prometheus.Registry — for tests and for components that shouldn't
// collide with the process-global default registry.
func NewUnregistered() *Registry {
	return New(prometheus.NewRegistry())
}
