package aiprotocol

import (
	"encoding/json"
	"strings"
	"time"
)

// openAIClassifier recognizes OpenAI-style chat-completions traffic,
// including Azure OpenAI, Groq, Together, and other API-compatible
// providers that reuse the same messages/tools/tool_calls shape.
type openAIClassifier struct{}

type openaiToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openaiRequest struct {
	Model    string          `json:"model,omitempty"`
	Messages []openaiMessage `json:"messages,omitempty"`
	Tools    []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Message struct {
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func (openAIClassifier) Name() ProtocolTag { return ProtoOpenAI }

func (openAIClassifier) CanClassify(body []byte) bool {
	s := string(body)
	return (strings.Contains(s, `"model"`) && (strings.Contains(s, `"messages"`) || strings.Contains(s, `"tool_calls"`))) ||
		strings.Contains(s, `"function_call"`) ||
		(strings.Contains(s, `"choices"`) && strings.Contains(s, `"finish_reason"`))
}

func (openAIClassifier) Classify(body []byte) (*Classification, error) {
	start := findJSONStart(body)
	if start < 0 {
		return nil, errNotJSON
	}
	data := body[start:]

	result := &Classification{Protocol: ProtoOpenAI, Confidence: 0.85, DetectedAt: time.Now(), Metadata: map[string]interface{}{}}

	var resp openaiResponse
	if err := json.Unmarshal(data, &resp); err == nil && len(resp.Choices) > 0 {
		result.Model = resp.Model
		for _, choice := range resp.Choices {
			if len(choice.Message.ToolCalls) == 0 {
				continue
			}
			tc := choice.Message.ToolCalls[0]
			result.ToolName = tc.Function.Name
			result.MessageType = "tool_call"
			result.Confidence = 0.97
			var args map[string]interface{}
			if json.Unmarshal([]byte(tc.Function.Arguments), &args) == nil {
				result.Arguments = args
			}
			result.Metadata["tool_call_id"] = tc.ID
			return result, nil
		}
		result.ToolName = "llm_completion"
		result.MessageType = "generation"
		return result, nil
	}

	var req openaiRequest
	if err := json.Unmarshal(data, &req); err == nil && len(req.Messages) > 0 {
		result.Model = req.Model
		for _, msg := range req.Messages {
			if msg.Role == "tool" && msg.ToolCallID != "" {
				result.ToolName = msg.Name
				result.MessageType = "tool_result"
				result.Confidence = 0.95
				result.Metadata["tool_call_id"] = msg.ToolCallID
				return result, nil
			}
		}
		if len(req.Tools) > 0 {
			names := make([]string, 0, len(req.Tools))
			for _, tool := range req.Tools {
				names = append(names, tool.Function.Name)
			}
			result.Metadata["available_tools"] = names
		}
		result.ToolName = "llm_completion"
		result.MessageType = "generation"
		result.Confidence = 0.90
		return result, nil
	}

	return nil, errNotJSON
}
