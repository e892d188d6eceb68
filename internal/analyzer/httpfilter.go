package analyzer

import (
	"context"
	"strings"

	"github.com/agentsight/agentsight/internal/eventmodel"
	"github.com/agentsight/agentsight/internal/filter"
	"github.com/agentsight/agentsight/internal/metrics"
)

// HTTPFilter evaluates a filter expression against a parsed HTTPMessage
// and drops the event when it matches (matching means "drop this", same
// polarity as SSLFilter). Field lookups are dotted paths into the message;
// a leading request./req./response./resp./res. segment restricts the
// condition to messages of that MessageType (a condition addressed to the
// wrong side of the conversation is evaluated against a missing field, so
// it matches only under filter.Evaluate's empty-right-hand-side rule).
// "path_prefix" is a virtual field recognized only here: it tests
// whether Path has the given value as a prefix rather than comparing for
// equality.
type HTTPFilter struct {
	expr    filter.Node
	metrics *metrics.Registry
}

func NewHTTPFilter(expression string, reg *metrics.Registry) *HTTPFilter {
	return &HTTPFilter{expr: filter.Parse(expression), metrics: reg}
}

func (f *HTTPFilter) Name() string { return "http_filter" }

func (f *HTTPFilter) Analyze(ctx context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
	if ev.Source != eventmodel.SourceHTTPParser {
		return []eventmodel.Event{ev}, nil
	}
	if f.metrics != nil {
		f.metrics.EventsProcessed.WithLabelValues(f.Name()).Inc()
	}

	var msg eventmodel.HTTPMessage
	if err := ev.UnmarshalData(&msg); err != nil {
		return []eventmodel.Event{ev}, nil
	}

	lookup := filter.JSONLookup(ev.Data)
	if evaluateHTTP(f.expr, msg, lookup) {
		if f.metrics != nil {
			f.metrics.EventsDropped.WithLabelValues(f.Name(), "matched").Inc()
			f.metrics.FilterMatches.WithLabelValues(f.Name(), "matched").Inc()
		}
		return nil, nil
	}
	return []eventmodel.Event{ev}, nil
}

func evaluateHTTP(node filter.Node, msg eventmodel.HTTPMessage, lookup filter.FieldLookup) bool {
	switch n := node.(type) {
	case filter.Empty:
		return false
	case filter.And:
		return evaluateHTTP(n.Left, msg, lookup) && evaluateHTTP(n.Right, msg, lookup)
	case filter.Or:
		return evaluateHTTP(n.Left, msg, lookup) || evaluateHTTP(n.Right, msg, lookup)
	case filter.Condition:
		return evaluateHTTPCondition(n, msg, lookup)
	default:
		return false
	}
}

func evaluateHTTPCondition(c filter.Condition, msg eventmodel.HTTPMessage, lookup filter.FieldLookup) bool {
	field := c.Field
	if side, rest, ok := splitSide(field); ok {
		wantsRequest := side == "request" || side == "req"
		isRequest := msg.MessageType == eventmodel.HTTPMessageRequest
		if wantsRequest != isRequest {
			// Condition targets the other side of the conversation:
			// the field never exists on this message.
			return filter.Evaluate(filter.Condition{Field: field, Operator: c.Operator, Value: c.Value}, alwaysMissing)
		}
		field = rest
	}

	if field == "path_prefix" {
		switch c.Operator {
		case filter.OpEquals:
			return strings.HasPrefix(msg.Path, c.Value)
		case filter.OpNotEquals:
			return !strings.HasPrefix(msg.Path, c.Value)
		}
	}

	return filter.Evaluate(filter.Condition{Field: field, Operator: c.Operator, Value: c.Value}, lookup)
}

func alwaysMissing(string) (string, bool) { return "", false }

func splitSide(field string) (side, rest string, ok bool) {
	for _, prefix := range []string{"request.", "req.", "response.", "resp.", "res."} {
		if strings.HasPrefix(field, prefix) {
			return strings.TrimSuffix(prefix, "."), field[len(prefix):], true
		}
	}
	return "", field, false
}
