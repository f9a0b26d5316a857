package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetersoncode/aguibridge/runtime"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) { c.name = name }
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) { c.version = version }
}

// NewServer creates an MCP server exposing tools. Long-running tools are
// skipped: their results come from a client, not from the call.
func NewServer(tools []runtime.Tool, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{name: "aguibridge-tools", version: "1.0.0"}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(cfg.name, cfg.version, server.WithToolCapabilities(true))
	for _, t := range tools {
		if t.LongRunning() {
			continue
		}
		s.AddTool(ToMCPTool(t), handler(t))
	}
	return s
}

func handler(t runtime.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := t.Call(ctx, runtime.ToolContext{}, req.GetArguments())
		return ToMCPCallToolResult(out, err), nil
	}
}

// ServeStdio serves tools over stdin and stdout, the transport used when
// the server runs as a subprocess.
func ServeStdio(tools []runtime.Tool, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(tools, opts...))
}
