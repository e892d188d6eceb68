package sinks

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// Console writes one JSON line per event to an underlying writer (stdout
// in production). Quiet mode keeps the sink alive but makes Write a no-op,
// so callers don't need to special-case wiring it in or out.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	quiet  bool
	enc    *json.Encoder
}

func NewConsole(w io.Writer, quiet bool) *Console {
	return &Console{w: w, quiet: quiet, enc: json.NewEncoder(w)}
}

func (c *Console) Write(ev eventmodel.Event) error {
	if c.quiet {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(ev)
}

func (c *Console) Close() error {
	return nil
}
