package runtime

import (
	"slices"
	"strings"
	"time"
)

// Authors with special meaning in session history.
const (
	AuthorUser   = "user"
	AuthorSystem = "system"
)

// FunctionCall is a model request to invoke a tool.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries the result of a tool invocation back to the model.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Part is one piece of content. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content is a role-tagged sequence of parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextContent returns content with a single text part.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{{Text: text}}}
}

// NewFunctionResponseContent returns user-role content carrying responses.
func NewFunctionResponseContent(responses ...FunctionResponse) *Content {
	parts := make([]Part, 0, len(responses))
	for i := range responses {
		parts = append(parts, Part{FunctionResponse: &responses[i]})
	}
	return &Content{Role: AuthorUser, Parts: parts}
}

// Actions carries side effects of an event on session state.
type Actions struct {
	StateDelta    map[string]any `json:"stateDelta,omitempty"`
	StateSnapshot map[string]any `json:"stateSnapshot,omitempty"`
}

// Event is a single unit of runtime output.
type Event struct {
	ID           string    `json:"id"`
	InvocationID string    `json:"invocationId,omitempty"`
	Author       string    `json:"author"`
	Content      *Content  `json:"content,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
	TurnComplete bool      `json:"turnComplete,omitempty"`
	FinishReason string    `json:"finishReason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	// LongRunningToolIDs lists function call ids in this event whose
	// results the runtime will not produce itself.
	LongRunningToolIDs []string `json:"longRunningToolIds,omitempty"`

	Actions    Actions        `json:"actions"`
	CustomData map[string]any `json:"customData,omitempty"`
}

// Text concatenates the non-empty text parts of the event.
func (e *Event) Text() string {
	if e == nil || e.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range e.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// HasText reports whether any part carries non-empty text.
func (e *Event) HasText() bool {
	if e == nil || e.Content == nil {
		return false
	}
	for _, p := range e.Content.Parts {
		if p.Text != "" {
			return true
		}
	}
	return false
}

// FunctionCalls returns the function calls in part order.
func (e *Event) FunctionCalls() []FunctionCall {
	if e == nil || e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if p.FunctionCall != nil {
			calls = append(calls, *p.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the function responses in part order.
func (e *Event) FunctionResponses() []FunctionResponse {
	if e == nil || e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if p.FunctionResponse != nil {
			responses = append(responses, *p.FunctionResponse)
		}
	}
	return responses
}

// IsLongRunning reports whether the call id is flagged long-running.
func (e *Event) IsLongRunning(callID string) bool {
	return slices.Contains(e.LongRunningToolIDs, callID)
}

// HasLongRunningCall reports whether any function call in the event is
// flagged long-running.
func (e *Event) HasLongRunningCall() bool {
	for _, fc := range e.FunctionCalls() {
		if e.IsLongRunning(fc.ID) {
			return true
		}
	}
	return false
}

// IsFinalResponse reports whether the event is the complete, final output of
// a model turn: not partial and carrying no calls or responses, or flagged
// with long-running tools.
func (e *Event) IsFinalResponse() bool {
	if len(e.LongRunningToolIDs) > 0 {
		return true
	}
	return !e.Partial && len(e.FunctionCalls()) == 0 && len(e.FunctionResponses()) == 0
}
