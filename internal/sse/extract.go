package sse

import "encoding/json"

// extractMessageID pulls message.id out of a message_start event's JSON
// payload. Anthropic's Messages streaming API nests the id one level down
// under "message"; a malformed or unexpected shape just yields "".
func extractMessageID(data string) string {
	var envelope struct {
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	if json.Unmarshal([]byte(data), &envelope) != nil {
		return ""
	}
	return envelope.Message.ID
}

// extractDeltaText pulls delta.text out of a content_block_delta event's
// JSON payload. Appending is gated on delta.text being present, not on a
// "text_delta" type tag — the type field is absent from some producers'
// frames, and presence of text is what the contract actually keys on.
// Non-text deltas (e.g. tool-use input fragments) have no delta.text and
// are reported as not-ok rather than contributing garbage.
func extractDeltaText(data string) (string, bool) {
	var envelope struct {
		Delta struct {
			Text string `json:"text"`
		} `json:"delta"`
	}
	if json.Unmarshal([]byte(data), &envelope) != nil {
		return "", false
	}
	if envelope.Delta.Text == "" {
		return "", false
	}
	return envelope.Delta.Text, true
}
