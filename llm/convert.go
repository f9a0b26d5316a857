package llm

import (
	"encoding/json"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/runtime"
)

// Messages converts session history into chat messages. Partial events are
// skipped and consecutive model turns are merged. Tool calls that never
// received a response are dropped, since providers reject them.
func Messages(history []*runtime.Event) []bridge.Message {
	var msgs []bridge.Message
	for _, ev := range history {
		if ev == nil || ev.Partial || ev.Content == nil {
			continue
		}
		msgs = appendContent(msgs, ev.Author, ev.Content)
	}
	return dropUnanswered(msgs)
}

func appendContent(msgs []bridge.Message, author string, c *runtime.Content) []bridge.Message {
	var (
		text    string
		calls   []bridge.ToolCall
		results []bridge.ToolResult
	)
	for _, p := range c.Parts {
		switch {
		case p.FunctionResponse != nil:
			results = append(results, toolResult(p.FunctionResponse))
		case p.FunctionCall != nil:
			calls = append(calls, toolCall(p.FunctionCall))
		default:
			text += p.Text
		}
	}

	if len(results) > 0 {
		msgs = append(msgs, bridge.Message{Role: bridge.RoleTool, ToolResults: results})
	}

	user := author == runtime.AuthorUser || c.Role == runtime.AuthorUser
	switch {
	case text == "" && len(calls) == 0:
		return msgs
	case user && len(calls) == 0:
		return append(msgs, bridge.Message{Role: bridge.RoleUser, Content: text})
	}

	if n := len(msgs); n > 0 && msgs[n-1].Role == bridge.RoleAssistant {
		last := &msgs[n-1]
		last.Content += text
		last.ToolCalls = append(last.ToolCalls, calls...)
		return msgs
	}
	return append(msgs, bridge.Message{Role: bridge.RoleAssistant, Content: text, ToolCalls: calls})
}

func toolCall(fc *runtime.FunctionCall) bridge.ToolCall {
	args := "{}"
	if len(fc.Args) > 0 {
		if data, err := json.Marshal(fc.Args); err == nil {
			args = string(data)
		}
	}
	return bridge.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args}
}

func toolResult(fr *runtime.FunctionResponse) bridge.ToolResult {
	content := "{}"
	if fr.Response != nil {
		if data, err := json.Marshal(fr.Response); err == nil {
			content = string(data)
		}
	}
	_, isErr := fr.Response["error"]
	return bridge.ToolResult{ToolCallID: fr.ID, Name: fr.Name, Content: content, IsError: isErr}
}

// dropUnanswered removes tool calls without a matching result, and results
// without a matching call.
func dropUnanswered(msgs []bridge.Message) []bridge.Message {
	called := make(map[string]bool)
	answered := make(map[string]bool)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			called[tc.ID] = true
		}
		for _, tr := range m.ToolResults {
			answered[tr.ToolCallID] = true
		}
	}

	out := msgs[:0]
	for _, m := range msgs {
		switch m.Role {
		case bridge.RoleAssistant:
			kept := m.ToolCalls[:0:0]
			for _, tc := range m.ToolCalls {
				if answered[tc.ID] {
					kept = append(kept, tc)
				}
			}
			if len(kept) == 0 {
				kept = nil
			}
			m.ToolCalls = kept
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
		case bridge.RoleTool:
			kept := m.ToolResults[:0:0]
			for _, tr := range m.ToolResults {
				if called[tr.ToolCallID] {
					kept = append(kept, tr)
				}
			}
			m.ToolResults = kept
			if len(m.ToolResults) == 0 {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// Declarations returns the tool declarations of an agent's tools.
func Declarations(tools []runtime.Tool) []bridge.ToolDeclaration {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]bridge.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters()
		if len(params) == 0 {
			params = bridge.EmptyObjectSchema
		}
		decls = append(decls, bridge.ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		})
	}
	return decls
}
