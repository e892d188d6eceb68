package aiprotocol

import (
	"encoding/json"
	"strings"
	"time"
)

// mcpClassifier recognizes Model Context Protocol JSON-RPC 2.0 traffic:
// tools/call, resources/read, prompts/get, sampling/createMessage, and the
// initialize handshake.
type mcpClassifier struct{}

type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type mcpToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type mcpResourceReadParams struct {
	URI string `json:"uri"`
}

func (mcpClassifier) Name() ProtocolTag { return ProtoMCP }

func (mcpClassifier) CanClassify(body []byte) bool {
	s := string(body)
	return strings.Contains(s, `"jsonrpc"`) &&
		(strings.Contains(s, `"tools/`) ||
			strings.Contains(s, `"resources/`) ||
			strings.Contains(s, `"prompts/`) ||
			strings.Contains(s, `"sampling/`) ||
			strings.Contains(s, `"initialize"`))
}

func (mcpClassifier) Classify(body []byte) (*Classification, error) {
	start := findJSONStart(body)
	if start < 0 {
		return nil, errNotJSON
	}
	var req mcpRequest
	if err := json.Unmarshal(body[start:], &req); err != nil {
		return nil, err
	}
	if req.JSONRPC != "2.0" {
		return nil, errNotJSON
	}

	result := &Classification{
		Protocol:    ProtoMCP,
		RawMethod:   req.Method,
		Confidence:  0.95,
		DetectedAt:  time.Now(),
		Metadata:    map[string]interface{}{},
		MessageType: classifyMCPMethod(req.Method),
	}

	switch req.Method {
	case "tools/call":
		var params mcpToolCallParams
		if json.Unmarshal(req.Params, &params) == nil {
			result.ToolName = params.Name
			result.Arguments = params.Arguments
			result.Confidence = 0.99
		}
	case "tools/list":
		result.ToolName = "_list_tools"
		result.MessageType = "discovery"
	case "resources/read":
		var params mcpResourceReadParams
		if json.Unmarshal(req.Params, &params) == nil {
			result.ToolName = "resource_read"
			result.Arguments = map[string]interface{}{"uri": params.URI}
		}
	case "prompts/get":
		result.ToolName = "prompt_get"
		result.MessageType = "retrieval"
	case "sampling/createMessage":
		result.ToolName = "llm_completion"
		result.MessageType = "generation"
	case "initialize":
		result.ToolName = "_handshake"
		result.MessageType = "handshake"
	default:
		result.ToolName = req.Method
	}
	return result, nil
}

func classifyMCPMethod(method string) string {
	switch {
	case strings.HasPrefix(method, "tools/"):
		return "tool_call"
	case strings.HasPrefix(method, "resources/"), strings.HasPrefix(method, "prompts/"):
		return "retrieval"
	case strings.HasPrefix(method, "sampling/"):
		return "generation"
	default:
		return "control"
	}
}
