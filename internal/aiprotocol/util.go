package aiprotocol

import (
	"bytes"
	"errors"
)

var errNotJSON = errors.New("aiprotocol: payload is not JSON")

// findJSONStart locates the first byte of a JSON object or array in data.
// HTTPMessage bodies are usually clean JSON already, but SSE text content
// and raw SSL captures can carry leading framing bytes.
func findJSONStart(data []byte) int {
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return 0
	}
	for i, b := range data {
		if b == '{' || b == '[' {
			return i
		}
	}
	return -1
}
