package chunkmerger

import (
	"bytes"
	"strconv"
	"strings"
)

type messageKind int

const (
	kindUnknown messageKind = iota
	kindRequest
	kindResponse
)

var chunkedTerminator = []byte("0\r\n\r\n")
var headerEnd = []byte("\r\n\r\n")

// classify reports whether buf opens with an HTTP request-line (a method
// token followed by a single space) or a response status-line ("HTTP/").
// Anything else is kindUnknown — the merger must pass that data through
// rather than swallow it.
func classify(buf []byte) messageKind {
	if bytes.HasPrefix(buf, []byte("HTTP/")) {
		return kindResponse
	}
	sp := bytes.IndexByte(buf, ' ')
	if sp <= 0 {
		return kindUnknown
	}
	token := buf[:sp]
	for _, b := range token {
		if b < 'A' || b > 'Z' {
			return kindUnknown
		}
	}
	return kindRequest
}

// findBoundary scans buf for the end of one complete HTTP message: the end
// of headers plus either the full Content-Length body or a chunked-transfer
// terminator. It returns the exclusive end offset of the message and true
// when one is fully present; otherwise ok is false and the caller should
// wait for more fragments.
func findBoundary(buf []byte, kind messageKind) (end int, ok bool) {
	if kind == kindUnknown {
		return 0, false
	}
	idx := bytes.Index(buf, headerEnd)
	if idx < 0 {
		return 0, false
	}
	headers := buf[:idx]
	bodyStart := idx + len(headerEnd)

	if isChunked(headers) {
		rel := bytes.Index(buf[bodyStart:], chunkedTerminator)
		if rel < 0 {
			return 0, false
		}
		return bodyStart + rel + len(chunkedTerminator), true
	}

	if cl, found := contentLength(headers); found {
		need := bodyStart + cl
		if len(buf) < need {
			return 0, false
		}
		return need, true
	}

	// No body expected (e.g. GET, or a response with neither
	// Content-Length nor chunked encoding headers present yet).
	return bodyStart, true
}

func isChunked(headers []byte) bool {
	for _, line := range bytes.Split(headers, []byte("\r\n")) {
		name, value, ok := splitHeaderLine(line)
		if !ok || !strings.EqualFold(name, "Transfer-Encoding") {
			continue
		}
		if strings.Contains(strings.ToLower(value), "chunked") {
			return true
		}
	}
	return false
}

func contentLength(headers []byte) (int, bool) {
	for _, line := range bytes.Split(headers, []byte("\r\n")) {
		name, value, ok := splitHeaderLine(line)
		if !ok || !strings.EqualFold(name, "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return string(line[:i]), string(line[i+1:]), true
}
