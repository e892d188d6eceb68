package httpparser

import "github.com/agentsight/agentsight/internal/eventmodel"

// Analyze is the C5 analyzer step. It accepts a merged SSL event
// (source "ssl" or "chunk_merger") and, if its data decodes as a complete
// HTTP message, returns a derived "http_parser" event carrying the parsed
// HTTPMessage. On any parse failure it returns ev unchanged — the parser
// never synthesizes a garbage HTTPMessage.
func Analyze(ev eventmodel.Event) eventmodel.Event {
	if ev.Source != eventmodel.SourceSSL && ev.Source != eventmodel.SourceChunkMerger {
		return ev
	}

	var payload eventmodel.SSLPayload
	if err := ev.UnmarshalData(&payload); err != nil {
		return ev
	}
	raw, err := payload.Bytes()
	if err != nil || len(raw) == 0 {
		return ev
	}

	msg, ok := Parse(raw, ev.Source)
	if !ok {
		return ev
	}

	derived, err := eventmodel.NewWithTimestamp(ev.TimestampMs, eventmodel.SourceHTTPParser, ev.Pid, ev.Comm, msg)
	if err != nil {
		return ev
	}
	return derived
}
