package aiprotocol

import "github.com/agentsight/agentsight/internal/eventmodel"

// SourceAIProtocol tags an enrichment event derived from an http_parser or
// sse_processor event. It is additive only: the Analyzer step always
// forwards the original event unchanged and, when a body is present,
// optionally appends one tagging event alongside it.
const SourceAIProtocol = "ai_protocol"

// Analyzer runs the classifier registry over HTTPMessage bodies and
// SSEAggregatedResponse text content, in the supplemental chain position
// right after HTTP-parser/SSE-processor. It never drops or blocks: the
// original event always passes through, and classification only adds.
type Analyzer struct {
	registry *Registry
}

func NewAnalyzer(registry *Registry) *Analyzer {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Analyzer{registry: registry}
}

// Analyze returns the events to forward: the original event, followed by a
// derived ai_protocol tagging event when the body yielded anything beyond
// the raw/unclassified fallback.
func (a *Analyzer) Analyze(ev eventmodel.Event) []eventmodel.Event {
	body := a.extractBody(ev)
	if body == nil {
		return []eventmodel.Event{ev}
	}

	classification := a.registry.Classify(body)
	if classification.Protocol == ProtoRaw {
		return []eventmodel.Event{ev}
	}

	tag, err := eventmodel.NewWithTimestamp(ev.TimestampMs, SourceAIProtocol, ev.Pid, ev.Comm, classification)
	if err != nil {
		return []eventmodel.Event{ev}
	}
	return []eventmodel.Event{ev, tag}
}

func (a *Analyzer) extractBody(ev eventmodel.Event) []byte {
	switch ev.Source {
	case eventmodel.SourceHTTPParser:
		var msg eventmodel.HTTPMessage
		if err := ev.UnmarshalData(&msg); err != nil || msg.Body == "" {
			return nil
		}
		return []byte(msg.Body)
	case eventmodel.SourceSSEProcessor:
		var resp eventmodel.SSEAggregatedResponse
		if err := ev.UnmarshalData(&resp); err != nil || resp.TextContent == "" {
			return nil
		}
		return []byte(resp.TextContent)
	default:
		return nil
	}
}
