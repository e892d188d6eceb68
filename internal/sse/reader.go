// Package sse aggregates merged SSL response events whose body is a
// text/event-stream into one summarized response per connection: the C6
// stage of the pipeline.
package sse

import (
	"strconv"
	"strings"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// splitHeadersAndBody looks for the end of an HTTP response's headers and,
// if the Content-Type header names text/event-stream, returns the body
// that follows. ok is false when raw isn't a recognizable SSE response
// start (no complete header block yet, or a non-event-stream content type).
func splitHeadersAndBody(raw []byte) (body []byte, ok bool) {
	idx := strings.Index(string(raw), "\r\n\r\n")
	if idx < 0 {
		return nil, false
	}
	headers := string(raw[:idx])
	if !strings.Contains(strings.ToLower(headers), "text/event-stream") {
		return nil, false
	}
	return raw[idx+4:], true
}

// extractEvents pulls every complete (blank-line-terminated) SSE record out
// of buf and returns them along with whatever trailing, not-yet-terminated
// bytes should be kept for the next append.
func extractEvents(buf string) (records []eventmodel.SSEEventRecord, remainder string) {
	normalized := strings.ReplaceAll(buf, "\r\n", "\n")
	for {
		blank := strings.Index(normalized, "\n\n")
		if blank < 0 {
			return records, normalized
		}
		block := normalized[:blank]
		normalized = normalized[blank+2:]
		if rec, ok := parseBlock(block); ok {
			records = append(records, rec)
		}
	}
}

func parseBlock(block string) (eventmodel.SSEEventRecord, bool) {
	var rec eventmodel.SSEEventRecord
	var dataLines []string
	saw := false
	for _, line := range strings.Split(block, "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			rec.Event = value
			saw = true
		case "data":
			dataLines = append(dataLines, value)
			saw = true
		case "id", "retry":
			saw = true
		}
	}
	if !saw {
		return eventmodel.SSEEventRecord{}, false
	}
	rec.Data = strings.Join(dataLines, "\n")
	return rec, true
}

func isDoneSentinel(rec eventmodel.SSEEventRecord) bool {
	return strings.TrimSpace(rec.Data) == "[DONE]"
}

func parseUsageTotal(data string) (int, bool) {
	// Best-effort scrape of the first numeric "output_tokens" (else
	// "input_tokens") field found at any depth, without pulling in a full
	// JSON schema for
	// Anthropic's usage object, which varies across message_start vs
	// message_delta payloads.
	for _, key := range []string{"\"output_tokens\":", "\"input_tokens\":"} {
		i := strings.Index(data, key)
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(data[i+len(key):])
		end := 0
		for end < len(rest) && (rest[end] == '-' || (rest[end] >= '0' && rest[end] <= '9')) {
			end++
		}
		if n, err := strconv.Atoi(rest[:end]); err == nil {
			return n, true
		}
	}
	return 0, false
}
