package execution

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/runtime"
)

var errExtraData = errors.New("extra data after JSON value")

// UnknownToolName names results whose call is not found in the history.
const UnknownToolName = "unknown"

// ParseToolResult decodes the content of a client tool message into a
// function response payload. Blank content is a successful empty result.
// Content that is not valid JSON is not an error: it becomes a structured
// error payload the model can reason about. Non-object JSON values are
// wrapped under "result".
func ParseToolResult(content string) map[string]any {
	if strings.TrimSpace(content) == "" {
		return map[string]any{"success": true, "result": nil}
	}

	dec := json.NewDecoder(strings.NewReader(content))
	var v any
	err := dec.Decode(&v)
	if err == nil && dec.More() {
		err = errExtraData
	}
	if err != nil {
		line, col := position(content, errorOffset(err, dec))
		return map[string]any{
			"error":       "Invalid JSON in tool result: " + err.Error(),
			"raw_content": content,
			"error_type":  "JSON_DECODE_ERROR",
			"line":        line,
			"column":      col,
		}
	}

	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"result": v}
}

func errorOffset(err error, dec *json.Decoder) int64 {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return se.Offset
	}
	return dec.InputOffset()
}

// position converts a byte offset into a 1-based line and column.
func position(s string, offset int64) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(s)) {
		offset = int64(len(s))
	}
	prefix := []byte(s[:offset])
	line = bytes.Count(prefix, []byte("\n")) + 1
	col = len(prefix) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}

// FunctionResponses converts tool messages into function responses. Tool
// names are resolved from the assistant tool calls in history.
func FunctionResponses(tools []events.Message, history []events.Message) []runtime.FunctionResponse {
	names := agui.ToolCallNames(history)
	out := make([]runtime.FunctionResponse, 0, len(tools))
	for _, m := range tools {
		if m.Role != agui.RoleTool {
			continue
		}
		id := agui.ToolCallID(m)
		name, ok := names[id]
		if !ok {
			name = UnknownToolName
		}
		out = append(out, runtime.FunctionResponse{
			ID:       id,
			Name:     name,
			Response: ParseToolResult(agui.Content(m)),
		})
	}
	return out
}
