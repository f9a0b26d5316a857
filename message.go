package aguibridge

import "github.com/google/uuid"

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
)

// Message is the provider-neutral chat message handed to model adapters.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// ToolCalls is only populated when Role is RoleAssistant.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolResults is only populated when Role is RoleTool.
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// GenerateMessageID creates a unique message identifier.
func GenerateMessageID() string {
	return uuid.NewString()
}

// Response represents a complete response from a model.
type Response struct {
	Content      string     `json:"content,omitempty"`
	FinishReason string     `json:"finishReason,omitempty"`
	Usage        Usage      `json:"usage"`
	ToolCalls    []ToolCall `json:"toolCalls,omitempty"`
}

// Usage contains token usage information for a request.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEvent represents a single event in a streaming model response.
type StreamEvent struct {
	// Delta contains the incremental text for this event.
	Delta string
	// Done is set on the last event, which carries Response.
	Done     bool
	Response *Response
	Err      error
}
