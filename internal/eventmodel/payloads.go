package eventmodel

import "encoding/hex"

// SSLFunction is the libssl call the probe intercepted.
type SSLFunction string

const (
	SSLFunctionRead      SSLFunction = "READ/RECV"
	SSLFunctionWrite     SSLFunction = "WRITE/SEND"
	SSLFunctionHandshake SSLFunction = "HANDSHAKE"
)

// SSLPayload is the Data schema for Source == SourceSSL.
//
// The eBPF capture bound is 32KiB per event: a payload larger than that is
// split across multiple events sharing the same connection keying, with
// Truncated set on the cut one and BytesLost recording how much was
// dropped (if known).
type SSLPayload struct {
	Function    SSLFunction `json:"function"`
	Len         int         `json:"len"`
	Data        string      `json:"data,omitempty"`
	DataHex     string      `json:"data_hex,omitempty"`
	IsHandshake bool        `json:"is_handshake"`
	Truncated   bool        `json:"truncated,omitempty"`
	BytesLost   int         `json:"bytes_lost,omitempty"`
	Tid         uint32      `json:"tid"`
	Uid         uint32      `json:"uid"`
	LatencyMs   *float64    `json:"latency_ms,omitempty"`
}

// Bytes returns the payload's content regardless of whether it was
// captured as UTF-8 (Data) or hex-dumped (DataHex).
func (p SSLPayload) Bytes() ([]byte, error) {
	if p.DataHex != "" {
		return hex.DecodeString(p.DataHex)
	}
	return []byte(p.Data), nil
}

// ProcessEventKind tags the variant of ProcessPayload in play.
type ProcessEventKind string

const (
	ProcessEventExec          ProcessEventKind = "EXEC"
	ProcessEventExit          ProcessEventKind = "EXIT"
	ProcessEventFileOpen      ProcessEventKind = "FILE_OPEN"
	ProcessEventBashReadline  ProcessEventKind = "BASH_READLINE"
)

// ProcessPayload is the Data schema for Source == SourceProcess: a tagged
// union over Event. Only the fields relevant to Event are populated; the
// rest are omitted from JSON rather than serialized as null/zero.
type ProcessPayload struct {
	Event ProcessEventKind `json:"event"`

	// EXEC
	Filename string `json:"filename,omitempty"`
	Ppid     uint32 `json:"ppid,omitempty"`

	// EXIT
	ExitCode   *int  `json:"exit_code,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`

	// FILE_OPEN
	Filepath      string `json:"filepath,omitempty"`
	Flags         int    `json:"flags,omitempty"`
	Count         int    `json:"count,omitempty"`
	WindowExpired bool   `json:"window_expired,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// BASH_READLINE
	Command string `json:"command,omitempty"`
}

// HTTPMessageType distinguishes a decoded request from a response.
type HTTPMessageType string

const (
	HTTPMessageRequest  HTTPMessageType = "request"
	HTTPMessageResponse HTTPMessageType = "response"
)

// HTTPMessage is the Data schema for Source == SourceHTTPParser.
//
// Determinism (spec invariant): this struct's JSON must be derivable
// purely from these fields. Never add a computed convenience field here —
// if it isn't in this schema, it must not appear in the JSON.
type HTTPMessage struct {
	MessageType HTTPMessageType `json:"message_type"`
	FirstLine   string          `json:"first_line"`

	Method   string `json:"method,omitempty"`
	Path     string `json:"path,omitempty"`
	Protocol string `json:"protocol,omitempty"`

	StatusCode int    `json:"status_code,omitempty"`
	StatusText string `json:"status_text,omitempty"`

	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`

	TotalSize      int   `json:"total_size"`
	HasBody        bool  `json:"has_body"`
	IsChunked      bool  `json:"is_chunked"`
	ContentLength  *int  `json:"content_length,omitempty"`

	OriginalSource string `json:"original_source"`
	RawData        string `json:"raw_data,omitempty"`
}

// SSEEventRecord is one parsed SSE record (an `event:`/`data:` block).
type SSEEventRecord struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
}

// SSEAggregatedResponse is the Data schema for Source == SourceSSEProcessor.
type SSEAggregatedResponse struct {
	ConnectionID     string           `json:"connection_id"`
	MessageID        string           `json:"message_id,omitempty"`
	StartTimeMs      int64            `json:"start_time"`
	EndTimeMs        int64            `json:"end_time"`
	DurationNs       int64            `json:"duration_ns"`
	Function         SSLFunction      `json:"function"`
	Tid              uint32           `json:"tid"`
	JSONContent      string           `json:"json_content,omitempty"`
	TextContent      string           `json:"text_content"`
	TotalSize        int              `json:"total_size"`
	EventCount       int              `json:"event_count"`
	HasMessageStart  bool             `json:"has_message_start"`
	SSEEvents        []SSEEventRecord `json:"sse_events"`
	Incomplete       bool             `json:"incomplete,omitempty"`
}
