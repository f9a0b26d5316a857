package runtime

import (
	"context"
	"encoding/json"
)

// ToolContext carries invocation metadata into a tool call.
type ToolContext struct {
	// FunctionCallID is the id the model assigned to this call. It may be
	// empty for runtimes that do not assign ids.
	FunctionCallID string
	InvocationID   string
	SessionID      string
}

// Tool is something the runtime can invoke on behalf of the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() json.RawMessage
	// LongRunning tools return immediately; their real result is delivered
	// later as a function response.
	LongRunning() bool
	Call(ctx context.Context, tc ToolContext, args map[string]any) (map[string]any, error)
}

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          json.RawMessage
	Fn              func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *FuncTool) Name() string                { return t.ToolName }
func (t *FuncTool) Description() string         { return t.ToolDescription }
func (t *FuncTool) Parameters() json.RawMessage { return t.Schema }
func (t *FuncTool) LongRunning() bool           { return false }

func (t *FuncTool) Call(ctx context.Context, _ ToolContext, args map[string]any) (map[string]any, error) {
	return t.Fn(ctx, args)
}
