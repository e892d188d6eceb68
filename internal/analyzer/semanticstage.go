package analyzer

import (
	"context"

	"github.com/agentsight/agentsight/internal/analyzer/semantic"
	"github.com/agentsight/agentsight/internal/eventmodel"
)

// SourceSemantic tags the additive enrichment event a SemanticStage emits
// alongside (never instead of) the event it annotated.
const SourceSemantic = "semantic"

// SemanticStage is an optional chain stage: when no sidecar is configured
// it is simply left out of the chain entirely (per spec.md §1, the
// semantic analyzer is an external collaborator, not a required
// dependency). When present, a sidecar failure drops only the annotation,
// never the underlying event; the failure itself is not logged here.
type SemanticStage struct {
	client semantic.Analyzer
}

func NewSemanticStage(client semantic.Analyzer) *SemanticStage {
	return &SemanticStage{client: client}
}

func (s *SemanticStage) Name() string { return "semantic" }

func (s *SemanticStage) Analyze(ctx context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
	if ev.Source != eventmodel.SourceHTTPParser && ev.Source != eventmodel.SourceSSEProcessor {
		return []eventmodel.Event{ev}, nil
	}

	resp, err := s.client.Analyze(ctx, semantic.Request{
		Source:  ev.Source,
		Pid:     ev.Pid,
		Comm:    ev.Comm,
		Payload: string(ev.Data),
	})
	if err != nil {
		// The sidecar is a best-effort collaborator: its failure never
		// takes the underlying event down with it.
		return []eventmodel.Event{ev}, nil
	}

	tagEvent, err := eventmodel.NewWithTimestamp(ev.TimestampMs, SourceSemantic, ev.Pid, ev.Comm, resp)
	if err != nil {
		return []eventmodel.Event{ev}, nil
	}
	return []eventmodel.Event{ev, tagEvent}, nil
}
