package analyzer

import (
	"context"

	"github.com/agentsight/agentsight/internal/eventmodel"
	"github.com/agentsight/agentsight/internal/filter"
	"github.com/agentsight/agentsight/internal/metrics"
)

// SSLFilter drops raw SSL events that match its expression before they
// reach the chunk merger — the pre-stage use case named in spec.md §4.7
// for dropping keep-alives and handshakes early. A matching expression
// means "drop this", not "keep this". Field lookups are dotted paths into
// the SSLPayload.
type SSLFilter struct {
	expr    filter.Node
	metrics *metrics.Registry
}

func NewSSLFilter(expression string, reg *metrics.Registry) *SSLFilter {
	return &SSLFilter{expr: filter.Parse(expression), metrics: reg}
}

func (f *SSLFilter) Name() string { return "ssl_filter" }

func (f *SSLFilter) Analyze(ctx context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
	if ev.Source != eventmodel.SourceSSL {
		return []eventmodel.Event{ev}, nil
	}
	if f.metrics != nil {
		f.metrics.EventsProcessed.WithLabelValues(f.Name()).Inc()
	}

	matches := filter.Evaluate(f.expr, filter.JSONLookup(ev.Data))
	if matches {
		if f.metrics != nil {
			f.metrics.EventsDropped.WithLabelValues(f.Name(), "matched").Inc()
			f.metrics.FilterMatches.WithLabelValues(f.Name(), "matched").Inc()
		}
		return nil, nil
	}
	return []eventmodel.Event{ev}, nil
}
