package agui

import (
	"encoding/json"
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	bridge "github.com/spetersoncode/aguibridge"
)

// RunAgentInput is the AG-UI run request. Clients send the full message
// history of the thread on every run.
type RunAgentInput struct {
	ThreadID       string                   `json:"threadId"`
	RunID          string                   `json:"runId"`
	ParentRunID    string                   `json:"parentRunId,omitempty"`
	Messages       []events.Message         `json:"messages"`
	Tools          []bridge.ToolDeclaration `json:"tools,omitempty"`
	Context        []ContextItem            `json:"context,omitempty"`
	State          map[string]any           `json:"state,omitempty"`
	ForwardedProps any                      `json:"forwardedProps,omitempty"`
}

// ContextItem is a piece of client-supplied context.
type ContextItem struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// ErrMissingThreadID is returned when a run request has no thread id.
var ErrMissingThreadID = errors.New("agui: missing threadId")

// Decode parses a run request body.
func Decode(data []byte) (*RunAgentInput, error) {
	var in RunAgentInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Validate checks the request and fills in a run id when absent.
// A thread id is required: it is the session key.
func (r *RunAgentInput) Validate() error {
	if r.ThreadID == "" {
		return ErrMissingThreadID
	}
	if r.RunID == "" {
		r.RunID = events.GenerateRunID()
	}
	return nil
}

// MessageIDs returns the ids of all messages in order, skipping empty ids.
func (r *RunAgentInput) MessageIDs() []string {
	ids := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// ToolNames returns the names of the client-declared tools.
func (r *RunAgentInput) ToolNames() []string {
	if len(r.Tools) == 0 {
		return nil
	}
	names := make([]string, len(r.Tools))
	for i, t := range r.Tools {
		names[i] = t.Name
	}
	return names
}

// DecodeState decodes the request state into a typed struct.
// Returns the zero value of T if State is nil.
func DecodeState[T any](input *RunAgentInput) (T, error) {
	var result T
	if input.State == nil {
		return result, nil
	}

	data, err := json.Marshal(input.State)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}
