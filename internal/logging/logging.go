// Package logging constructs the single shared slog.Logger used across the
// pipeline: probes, analyzers, and sinks all log through it rather than
// rolling their own. A noisy per-event warning goes to Debug; anything a
// human running `trace` needs to see goes to Info or above.
package logging

import (
	"log/slog"
	"os"
)

// Options controls the shared logger's verbosity and format.
type Options struct {
	// Verbose selects a human-readable text handler instead of JSON.
	Verbose bool
	// Level overrides the default (Info, or Debug when Verbose is set).
	Level slog.Level
}

// New builds the shared logger. Call once at process startup and pass the
// result down. Constructors handed a nil logger fall back to
// slog.Default(), and filter.Parse logs through the package-level slog
// functions.
func New(opts Options) *slog.Logger {
	level := opts.Level
	if level == 0 && opts.Verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.Verbose {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}

	return slog.New(handler)
}
