// Package sinks implements the three terminal stages every analyzer chain
// fans its output into: a console printer, a rotating file logger, and a
// broadcast channel feeding an embedded HTTP/SSE/websocket server. Sinks
// run in parallel and must never block the chain that feeds them — a slow
// sink drops events for itself, never for its siblings or for upstream
// analyzers.
package sinks

import "github.com/agentsight/agentsight/internal/eventmodel"

// Sink is a terminal node that writes an Event somewhere (stdout, a file,
// a network connection). Write must never block on a misbehaving
// downstream consumer; a sink with internal fan-out (Broadcast) enforces
// that itself rather than pushing the burden onto callers.
type Sink interface {
	Write(ev eventmodel.Event) error
	Close() error
}

// Fanout writes ev to every sink in turn and does not stop at a single
// sink's failure, so the others still receive the event. It logs nothing
// itself: the failures are collected and returned to the caller.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Write(ev eventmodel.Event) []error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Write(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (f *Fanout) Close() []error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
