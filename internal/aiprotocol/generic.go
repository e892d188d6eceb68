package aiprotocol

import (
	"encoding/json"
	"strings"
	"time"
)

// genericClassifier is the last-resort fallback: keyword heuristics over
// the raw body for traffic that looks AI-agent-shaped (LangChain/CrewAI/
// AutoGen-style orchestration, custom tool-calling frameworks) but doesn't
// match a specific known protocol.
type genericClassifier struct{}

var aiKeywords = map[string][]string{
	"tool_call":  {"function_call", "tool_use", "tool_input", "tool_output", "action_input", "invoke"},
	"generation": {"prompt", "completion", "temperature", "max_tokens", "top_p", "system_prompt"},
	"retrieval":  {"embedding", "similarity", "cosine", "semantic_search", "context_window", "retrieval"},
	"agent":      {"agent_id", "agent_name", "agent_type", "orchestrator", "planner", "chain_of_thought"},
}

func (genericClassifier) Name() ProtocolTag { return ProtoCustom }

func (genericClassifier) CanClassify(body []byte) bool {
	s := strings.ToLower(string(body))
	matches := 0
	for _, keywords := range aiKeywords {
		for _, kw := range keywords {
			if strings.Contains(s, kw) {
				matches++
			}
		}
	}
	return matches >= 2
}

func (genericClassifier) Classify(body []byte) (*Classification, error) {
	start := findJSONStart(body)
	if start < 0 {
		return nil, errNotJSON
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body[start:], &raw); err != nil {
		return nil, err
	}

	s := strings.ToLower(string(body))
	bestCategory, bestScore := "unknown", 0
	for category, keywords := range aiKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(s, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore, bestCategory = score, category
		}
	}

	confidence := float64(bestScore) * 0.15
	if confidence > 0.85 {
		confidence = 0.85
	}

	result := &Classification{
		Protocol:    ProtoCustom,
		MessageType: bestCategory,
		Confidence:  confidence,
		DetectedAt:  time.Now(),
		Metadata:    map[string]interface{}{"keyword_matches": bestScore},
	}

	for _, field := range []string{"function_name", "tool_name", "action", "function", "tool", "method"} {
		if val, ok := raw[field].(string); ok {
			result.ToolName = val
			break
		}
	}
	if result.ToolName == "" {
		result.ToolName = "ai_operation"
	}
	if model, ok := raw["model"].(string); ok {
		result.Model = model
	}
	return result, nil
}
