package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/runtime"
)

func modelEvent(parts ...runtime.Part) *runtime.Event {
	return &runtime.Event{Author: "assistant", Content: &runtime.Content{Role: roleModel, Parts: parts}}
}

func TestMessages(t *testing.T) {
	call := &runtime.FunctionCall{ID: "c1", Name: "add", Args: map[string]any{"a": 1}}
	pending := &runtime.FunctionCall{ID: "c2", Name: "confirm"}
	result := &runtime.FunctionResponse{ID: "c1", Name: "add", Response: map[string]any{"sum": 1}}

	history := []*runtime.Event{
		{Author: runtime.AuthorUser, Content: runtime.NewTextContent(runtime.AuthorUser, "add one")},
		{Author: "assistant", Partial: true, Content: runtime.NewTextContent(roleModel, "Sur")},
		modelEvent(runtime.Part{Text: "Sure."}),
		modelEvent(runtime.Part{FunctionCall: call}),
		{Author: "assistant", Content: runtime.NewFunctionResponseContent(*result)},
		modelEvent(runtime.Part{FunctionCall: pending}),
		{Author: runtime.AuthorUser, Content: runtime.NewTextContent(runtime.AuthorUser, "never mind")},
		nil,
	}

	got := Messages(history)
	want := []bridge.Message{
		{Role: bridge.RoleUser, Content: "add one"},
		{Role: bridge.RoleAssistant, Content: "Sure.", ToolCalls: []bridge.ToolCall{{ID: "c1", Name: "add", Arguments: `{"a":1}`}}},
		{Role: bridge.RoleTool, ToolResults: []bridge.ToolResult{{ToolCallID: "c1", Name: "add", Content: `{"sum":1}`}}},
		{Role: bridge.RoleUser, Content: "never mind"},
	}
	assert.Equal(t, want, got)
}

func TestMessages_ClientToolResult(t *testing.T) {
	history := []*runtime.Event{
		modelEvent(runtime.Part{FunctionCall: &runtime.FunctionCall{ID: "c9", Name: "confirm"}}),
		{Author: runtime.AuthorUser, Content: runtime.NewFunctionResponseContent(runtime.FunctionResponse{
			ID: "c9", Name: "confirm", Response: map[string]any{"error": "declined"},
		})},
	}

	got := Messages(history)
	if assert.Len(t, got, 2) {
		assert.Equal(t, `{}`, got[0].ToolCalls[0].Arguments)
		assert.Equal(t, bridge.RoleTool, got[1].Role)
		assert.True(t, got[1].ToolResults[0].IsError)
	}
}

func TestMessages_OrphanResultDropped(t *testing.T) {
	history := []*runtime.Event{
		{Author: runtime.AuthorUser, Content: runtime.NewFunctionResponseContent(runtime.FunctionResponse{ID: "gone", Name: "x"})},
		{Author: runtime.AuthorUser, Content: runtime.NewTextContent(runtime.AuthorUser, "hello")},
	}
	assert.Equal(t, []bridge.Message{{Role: bridge.RoleUser, Content: "hello"}}, Messages(history))
}

func TestDeclarations(t *testing.T) {
	assert.Nil(t, Declarations(nil))

	decls := Declarations([]runtime.Tool{adder()})
	if assert.Len(t, decls, 1) {
		assert.Equal(t, "add", decls[0].Name)
		assert.Equal(t, "Add two numbers.", decls[0].Description)
		assert.Equal(t, bridge.EmptyObjectSchema, decls[0].Parameters)
	}
}
