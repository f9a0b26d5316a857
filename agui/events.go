package agui

import (
	"encoding/json"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// ToolCallIDOf returns the tool call id carried by a TOOL_CALL_* event, or ""
// for any other event.
func ToolCallIDOf(ev events.Event) string {
	switch ev.Type() {
	case events.EventTypeToolCallStart, events.EventTypeToolCallArgs,
		events.EventTypeToolCallEnd, events.EventTypeToolCallResult:
	default:
		return ""
	}
	data, err := ev.ToJSON()
	if err != nil {
		return ""
	}
	var v struct {
		ToolCallID string `json:"toolCallId"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return v.ToolCallID
}

// IsTerminal reports whether ev ends a run.
func IsTerminal(ev events.Event) bool {
	t := ev.Type()
	return t == events.EventTypeRunFinished || t == events.EventTypeRunError
}
