// Package httpparser decodes the byte runs the chunk merger reassembles
// into structured HTTPMessage payloads: request/status line, folded
// case-insensitive headers, and a chunked-transfer-decoded body.
package httpparser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/agentsight/agentsight/internal/eventmodel"
)

// ============================================================================
// START LINE AND HEADER PARSING
// ============================================================================

// Parse decodes a single HTTP request or response out of raw. ok is false
// when raw has no complete header block, does not open with a recognizable
// request or status line, or declares a chunked body whose terminating
// chunk is missing; header lines without a colon are skipped, not rejected.
// Callers must pass the original event through unchanged when ok is false
// rather than synthesize a partial HTTPMessage.
func Parse(raw []byte, originalSource string) (eventmodel.HTTPMessage, bool) {
	headerEndIdx := bytes.Index(raw, []byte("\r\n\r\n"))
	if headerEndIdx < 0 {
		return eventmodel.HTTPMessage{}, false
	}

	lines := splitLines(raw[:headerEndIdx])
	if len(lines) == 0 {
		return eventmodel.HTTPMessage{}, false
	}
	firstLine := lines[0]

	msg := eventmodel.HTTPMessage{
		FirstLine:      firstLine,
		Headers:        map[string]string{},
		OriginalSource: originalSource,
		RawData:        string(raw),
		TotalSize:      len(raw),
	}

	if strings.HasPrefix(firstLine, "HTTP/") {
		if !parseStatusLine(firstLine, &msg) {
			return eventmodel.HTTPMessage{}, false
		}
		msg.MessageType = eventmodel.HTTPMessageResponse
	} else {
		if !parseRequestLine(firstLine, &msg) {
			return eventmodel.HTTPMessage{}, false
		}
		msg.MessageType = eventmodel.HTTPMessageRequest
	}

	foldHeaders(lines[1:], msg.Headers)

	if cl := headerValue(msg.Headers, "Content-Length"); cl != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(cl)); err == nil {
			msg.ContentLength = &n
		}
	}
	msg.IsChunked = strings.Contains(strings.ToLower(headerValue(msg.Headers, "Transfer-Encoding")), "chunked")

	bodyStart := headerEndIdx + 4
	body := raw[bodyStart:]

	if msg.IsChunked {
		decoded, ok := decodeChunked(body)
		if !ok {
			return eventmodel.HTTPMessage{}, false
		}
		body = decoded
	} else if msg.ContentLength != nil && *msg.ContentLength < len(body) {
		body = body[:*msg.ContentLength]
	}

	msg.Body = string(body)
	msg.HasBody = len(body) > 0
	return msg, true
}

func parseRequestLine(line string, msg *eventmodel.HTTPMessage) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return false
	}
	msg.Method = parts[0]
	msg.Path = parts[1]
	msg.Protocol = parts[2]
	return true
}

func parseStatusLine(line string, msg *eventmodel.HTTPMessage) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return false
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	msg.Protocol = parts[0]
	msg.StatusCode = code
	if len(parts) == 3 {
		msg.StatusText = parts[2]
	}
	return true
}

// foldHeaders joins RFC 7230 obsolete line-folding continuations (a line
// starting with SP or TAB) onto the previous header's value, and stores
// every key case-insensitively by lower-casing it.
func foldHeaders(lines []string, headers map[string]string) {
	var lastKey string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			headers[lastKey] = headers[lastKey] + " " + strings.TrimSpace(line)
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])
		headers[key] = value
		lastKey = key
	}
}

func headerValue(headers map[string]string, name string) string {
	return headers[strings.ToLower(name)]
}

func splitLines(b []byte) []string {
	raw := strings.Split(string(b), "\r\n")
	return raw
}

// decodeChunked concatenates a chunked-transfer body into its decoded
// bytes. ok is false when the terminating 0-length chunk is not present.
func decodeChunked(body []byte) ([]byte, bool) {
	var out bytes.Buffer
	rest := body
	for {
		idx := bytes.Index(rest, []byte("\r\n"))
		if idx < 0 {
			return nil, false
		}
		sizeLine := string(rest[:idx])
		if semi := strings.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
		if err != nil {
			return nil, false
		}
		rest = rest[idx+2:]
		if size == 0 {
			return out.Bytes(), true
		}
		if int64(len(rest)) < size+2 {
			return nil, false
		}
		out.Write(rest[:size])
		rest = rest[size+2:] // skip chunk data and its trailing \r\n
	}
}
