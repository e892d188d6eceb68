// Package aiprotocol is a supplemental enrichment stage: it tags an
// already-parsed HTTPMessage or SSEAggregatedResponse with which AI agent
// protocol its body looks like (MCP, OpenAI-style tool calling, or a
// generic heuristic fallback), purely additively. It never blocks or
// drops an event — a classification failure just means no tag is added.
package aiprotocol

import "time"

// ProtocolTag identifies the AI protocol a Classifier recognized.
type ProtocolTag string

const (
	ProtoMCP    ProtocolTag = "MCP"
	ProtoOpenAI ProtocolTag = "OPENAI"
	ProtoCustom ProtocolTag = "CUSTOM_AGENT"
	ProtoRaw    ProtocolTag = "RAW"
)

// Classification is the normalized result of running the registered
// classifiers over a message body, regardless of which protocol matched.
type Classification struct {
	Protocol    ProtocolTag            `json:"protocol"`
	ToolName    string                 `json:"tool_name,omitempty"`
	MessageType string                 `json:"message_type,omitempty"`
	Model       string                 `json:"model,omitempty"`
	RawMethod   string                 `json:"raw_method,omitempty"`
	Confidence  float64                `json:"confidence"`
	Arguments   map[string]interface{} `json:"arguments,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt  time.Time              `json:"detected_at"`
}

// Classifier is a single protocol-specific recognizer.
type Classifier interface {
	Name() ProtocolTag
	CanClassify(body []byte) bool
	Classify(body []byte) (*Classification, error)
}

// Registry tries each registered Classifier in order and returns the
// first successful match.
type Registry struct {
	classifiers []Classifier
}

// NewRegistry builds a Registry with the built-in classifiers, the generic
// heuristic detector last so specific protocols get first refusal.
func NewRegistry() *Registry {
	return &Registry{classifiers: []Classifier{
		&mcpClassifier{},
		&openAIClassifier{},
		&genericClassifier{},
	}}
}

// Register adds a custom classifier ahead of the generic fallback.
func (r *Registry) Register(c Classifier) {
	if len(r.classifiers) == 0 {
		r.classifiers = append(r.classifiers, c)
		return
	}
	last := r.classifiers[len(r.classifiers)-1]
	r.classifiers[len(r.classifiers)-1] = c
	r.classifiers = append(r.classifiers, last)
}

// Classify runs body through every registered classifier and returns the
// first match, or ProtoRaw with zero confidence if nothing recognized it.
func (r *Registry) Classify(body []byte) *Classification {
	for _, c := range r.classifiers {
		if !c.CanClassify(body) {
			continue
		}
		if result, err := c.Classify(body); err == nil && result != nil {
			return result
		}
	}
	return &Classification{Protocol: ProtoRaw, MessageType: "unknown", DetectedAt: time.Now()}
}
