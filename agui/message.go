package agui

import "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

// Role constants matching AG-UI protocol.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
	RoleDeveloper = "developer"
)

// Content returns the message text, or "" when absent.
func Content(m events.Message) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// ToolCallID returns the tool call a tool message answers, or "".
func ToolCallID(m events.Message) string {
	if m.ToolCallID == nil {
		return ""
	}
	return *m.ToolCallID
}

// LatestUserMessage returns the last user message with non-empty content.
func LatestUserMessage(msgs []events.Message) (events.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && Content(msgs[i]) != "" {
			return msgs[i], true
		}
	}
	return events.Message{}, false
}

// ToolCallNames maps tool call ids to tool names across assistant messages.
func ToolCallNames(msgs []events.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Function.Name
		}
	}
	return names
}
