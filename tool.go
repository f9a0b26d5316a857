package aguibridge

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// ToolDeclaration describes a tool by name, purpose and JSON Schema parameters.
// Client-declared tools arrive in this shape on every run request.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a request from the model to invoke a tool.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is a JSON string containing the arguments to pass.
	Arguments string `json:"arguments"`
}

// ToolResult represents the result of executing a tool call.
type ToolResult struct {
	// ToolCallID matches the ID from the corresponding ToolCall.
	ToolCallID string `json:"toolCallId"`
	// Name is the tool name, "unknown" when it cannot be resolved.
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// EmptyObjectSchema is the parameter schema used when a declaration has none.
var EmptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// NewCallID returns a tool call identifier of the form "call_" + 8 hex chars.
func NewCallID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "call_" + hex.EncodeToString(b[:])
}
