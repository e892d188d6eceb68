// Package analyzer composes the C7 analyzer chain: an ordered list of
// stages, each consuming one Event and producing zero or more Events for
// the next stage. A stage producing nothing terminates propagation for
// that event only; the chain itself never aborts on a single bad event.
package analyzer

import (
	"context"
	"log/slog"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// Analyzer is the narrow capability every chain stage implements.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, ev eventmodel.Event) ([]eventmodel.Event, error)
}

// Func adapts a plain function into an Analyzer.
type Func struct {
	FuncName string
	Fn       func(context.Context, eventmodel.Event) ([]eventmodel.Event, error)
}

func (f Func) Name() string { return f.FuncName }
func (f Func) Analyze(ctx context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
	return f.Fn(ctx, ev)
}

// Chain runs a value slice of Analyzers in order. The output of one stage
// becomes the input of the next; when a stage returns no events for a
// given input, that input's propagation stops there — later events are
// unaffected.
type Chain struct {
	stages []Analyzer
	logger *slog.Logger
}

func NewChain(logger *slog.Logger, stages ...Analyzer) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{stages: stages, logger: logger}
}

// Process runs ev through every stage and returns whatever events survive
// to the end of the chain. A stage that errors logs and drops the event it
// was given (that event's branch only); it never aborts the whole chain.
func (c *Chain) Process(ctx context.Context, ev eventmodel.Event) []eventmodel.Event {
	current := []eventmodel.Event{ev}
	for _, stage := range c.stages {
		var next []eventmodel.Event
		for _, in := range current {
			out, err := stage.Analyze(ctx, in)
			if err != nil {
				c.logger.Warn("analyzer: stage failed, dropping event", "stage", stage.Name(), "err", err)
				continue
			}
			next = append(next, out...)
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}
