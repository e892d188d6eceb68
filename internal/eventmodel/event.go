// Package eventmodel defines the uniform envelope every analyzer and sink
// in the pipeline consumes: a timestamp, a source tag, a pid/comm pair, and
// an opaque structured payload. Events are values — free to clone, carrying
// no back-references to the chain that produced them.
package eventmodel

import (
	"encoding/json"
	"time"
)

// Source tags identify the producer of an Event. Downstream stages switch
// on this to decide whether an event is theirs to touch.
const (
	SourceSSL          = "ssl"
	SourceProcess      = "process"
	SourceHTTPParser   = "http_parser"
	SourceSSEProcessor = "sse_processor"
	SourceChunkMerger  = "chunk_merger"
)

// Event is the immutable envelope carried through the pipeline. Timestamp,
// Pid, and Comm are authoritative only at the point of first production:
// an analyzer that derives a new Event from one or more upstream Events
// must copy these fields from the originating Event (or, when merging
// several, from the merge's end time per the component's own rule) and
// must never regenerate them from wall-clock time. Doing otherwise breaks
// cross-stream correlation, since the SSL and process streams have no
// global order and consumers rely on Timestamp to line them up.
type Event struct {
	// TimestampMs is milliseconds since the Unix epoch, monotonic within a
	// single probe but not across probes.
	TimestampMs int64 `json:"timestamp"`
	// Source identifies the producer (see the Source* constants).
	Source string `json:"source"`
	// Pid is the process id reported by the producer.
	Pid uint32 `json:"pid"`
	// Comm is the process name, at most 16 bytes per the kernel's
	// TASK_COMM_LEN convention.
	Comm string `json:"comm"`
	// Data is the structured payload; its schema is determined by Source.
	Data json.RawMessage `json:"data"`
}

// New stamps the current wall-clock time. Use this only at the point a
// probe runner first wraps a line from its child process — never inside an
// analyzer deriving an event from another.
func New(source string, pid uint32, comm string, data any) (Event, error) {
	return NewWithTimestamp(time.Now().UnixMilli(), source, pid, comm, data)
}

// NewWithTimestamp preserves an upstream timestamp. This is what analyzers
// must use when synthesizing a derived event, per the envelope invariant.
func NewWithTimestamp(timestampMs int64, source string, pid uint32, comm string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		TimestampMs: timestampMs,
		Source:      source,
		Pid:         pid,
		Comm:        comm,
		Data:        raw,
	}, nil
}

// Clone returns a value copy. Data is a json.RawMessage (a byte slice), so
// callers that mutate the returned Data must copy it first — Clone itself
// only copies the slice header, matching the "values, freely cloneable"
// contract for the common case of fanning an Event out to multiple sinks
// that only read it.
func (e Event) Clone() Event {
	return e
}

// UnmarshalData decodes Data into v. Analyzers that only care about one
// Source's schema use this instead of touching json.RawMessage directly.
func (e Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Time returns TimestampMs as a time.Time, for components that need
// duration arithmetic (e.g. idle-timeout comparisons).
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TimestampMs)
}
