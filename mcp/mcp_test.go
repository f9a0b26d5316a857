package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/aguibridge/runtime"
)

func testTools() []runtime.Tool {
	return []runtime.Tool{
		&runtime.FuncTool{
			ToolName:        "greet",
			ToolDescription: "Greet someone",
			Schema:          json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
			Fn: func(_ context.Context, args map[string]any) (map[string]any, error) {
				return map[string]any{"greeting": "Hello, " + args["name"].(string) + "!"}, nil
			},
		},
		&runtime.FuncTool{
			ToolName:        "fail",
			ToolDescription: "Always fails",
			Fn: func(context.Context, map[string]any) (map[string]any, error) {
				return nil, errors.New("backend unavailable")
			},
		},
		longRunning{},
	}
}

type longRunning struct{}

func (longRunning) Name() string                { return "confirm" }
func (longRunning) Description() string         { return "Client-side confirmation" }
func (longRunning) Parameters() json.RawMessage { return nil }
func (longRunning) LongRunning() bool           { return true }
func (longRunning) Call(context.Context, runtime.ToolContext, map[string]any) (map[string]any, error) {
	return nil, nil
}

func newRegistry(t *testing.T) *RemoteRegistry {
	t.Helper()
	srv := NewServer(testTools(), WithName("test-server"), WithVersion("1.0.0"))
	c, err := client.NewInProcessClient(srv)
	require.NoError(t, err)

	r, err := NewRemoteRegistryFromClient(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRemoteRegistry_ListsServerTools(t *testing.T) {
	r := newRegistry(t)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"fail", "greet"}, r.Names())

	tool, ok := r.Tool("greet")
	require.True(t, ok)
	assert.Equal(t, "Greet someone", tool.Description())
	assert.False(t, tool.LongRunning())
	assert.JSONEq(t, `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`, string(tool.Parameters()))

	_, ok = r.Tool("confirm")
	assert.False(t, ok, "long-running tools are not served")
}

func TestRemoteTool_Call(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	t.Run("structured result", func(t *testing.T) {
		tool, _ := r.Tool("greet")
		out, err := tool.Call(ctx, runtime.ToolContext{FunctionCallID: "c1"}, map[string]any{"name": "World"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"greeting": "Hello, World!"}, out)
	})

	t.Run("error result", func(t *testing.T) {
		tool, _ := r.Tool("fail")
		_, err := tool.Call(ctx, runtime.ToolContext{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend unavailable")
	})
}

func TestRemoteRegistry_Refresh(t *testing.T) {
	srv := NewServer(testTools()[:1])
	c, err := client.NewInProcessClient(srv)
	require.NoError(t, err)
	r, err := NewRemoteRegistryFromClient(context.Background(), c)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 1, r.Len())

	srv.AddTool(mcp.NewTool("echo", mcp.WithDescription("Echo text"), mcp.WithString("text")),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(req.GetString("text", "")), nil
		})
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, []string{"echo", "greet"}, r.Names())

	echo, ok := r.Tool("echo")
	require.True(t, ok)
	out, err := echo.Call(context.Background(), runtime.ToolContext{}, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "hi"}, out)
}

func TestFromMCPCallToolResult(t *testing.T) {
	tests := []struct {
		name    string
		result  *mcp.CallToolResult
		want    map[string]any
		wantErr string
	}{
		{name: "nil", result: nil, wantErr: "empty tool result"},
		{name: "plain text", result: mcp.NewToolResultText("sunny"), want: map[string]any{"result": "sunny"}},
		{name: "json text", result: mcp.NewToolResultText(`{"temp": 21}`), want: map[string]any{"temp": 21.0}},
		{name: "error", result: mcp.NewToolResultError("boom"), wantErr: "boom"},
		{
			name:   "structured",
			result: mcp.NewToolResultStructured(map[string]any{"ok": true}, `{"ok":true}`),
			want:   map[string]any{"ok": true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMCPCallToolResult(tt.result)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMCPTool(t *testing.T) {
	tool := ToMCPTool(longRunning{})
	assert.Equal(t, "confirm", tool.Name)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.RawInputSchema))
}
