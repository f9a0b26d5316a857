// Package mcp connects agents to Model Context Protocol servers.
//
// A [RemoteRegistry] lists the tools of an MCP server and exposes each as a
// backend runtime.Tool, so the agent runtime can call them while serving a
// run. [NewServer] goes the other way and publishes runtime tools as an MCP
// server.
//
//	remote, err := mcp.NewRemoteRegistry(ctx, "./my-mcp-server", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
//
//	agent := &runtime.Agent{Name: "assistant", Tools: remote.Tools()}
package mcp

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spetersoncode/aguibridge/runtime"
)

// ToMCPTool converts a runtime tool to an MCP tool declaration.
func ToMCPTool(t runtime.Tool) mcp.Tool {
	schema := t.Parameters()
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema)
}

// inputSchema returns the JSON schema of an MCP tool, from either
// RawInputSchema or InputSchema.
func inputSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil
	}
	return data
}

// FromMCPCallToolResult converts an MCP call result into a function
// response. Structured content that is a JSON object is used as is. Text
// content holding a JSON object is decoded; other text is returned under
// "result". A result flagged as an error becomes an error.
func FromMCPCallToolResult(result *mcp.CallToolResult) (map[string]any, error) {
	if result == nil {
		return nil, errors.New("empty tool result")
	}

	var textParts []string
	for _, c := range result.Content {
		switch content := c.(type) {
		case mcp.TextContent:
			textParts = append(textParts, content.Text)
		case *mcp.TextContent:
			textParts = append(textParts, content.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				textParts = append(textParts, string(data))
			}
		}
	}
	text := strings.Join(textParts, "\n")

	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, errors.New(text)
	}

	if m, ok := asObject(result.StructuredContent); ok {
		return m, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}
	return map[string]any{"result": text}, nil
}

func asObject(v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if json.Unmarshal(data, &m) != nil || m == nil {
		return nil, false
	}
	return m, true
}

// ToMCPCallToolResult converts a runtime tool's output to an MCP result.
func ToMCPCallToolResult(out map[string]any, err error) *mcp.CallToolResult {
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	if out == nil {
		out = map[string]any{}
	}
	data, mErr := json.Marshal(out)
	if mErr != nil {
		return mcp.NewToolResultError("encode result: " + mErr.Error())
	}
	return mcp.NewToolResultStructured(out, string(data))
}
