package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spetersoncode/aguibridge/runtime"
)

// RemoteRegistry provides the tools of an MCP server as runtime tools.
//
// RemoteRegistry is safe for concurrent use. The tool list is cached
// locally and can be refreshed with [RemoteRegistry.Refresh].
type RemoteRegistry struct {
	client *client.Client
	mu     sync.RWMutex
	tools  map[string]*RemoteTool
}

// NewRemoteRegistry connects to an MCP server started as a subprocess and
// speaking over stdio.
func NewRemoteRegistry(ctx context.Context, command string, env []string, args ...string) (*RemoteRegistry, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create stdio client: %w", err)
	}
	return NewRemoteRegistryFromClient(ctx, c)
}

// NewRemoteRegistrySSE connects to an MCP server over SSE.
func NewRemoteRegistrySSE(ctx context.Context, baseURL string) (*RemoteRegistry, error) {
	c, err := client.NewSSEMCPClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mcp: create SSE client: %w", err)
	}
	return NewRemoteRegistryFromClient(ctx, c)
}

// NewRemoteRegistryHTTP connects to an MCP server over streamable HTTP.
func NewRemoteRegistryHTTP(ctx context.Context, url string) (*RemoteRegistry, error) {
	c, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("mcp: create HTTP client: %w", err)
	}
	return NewRemoteRegistryFromClient(ctx, c)
}

// NewRemoteRegistryFromClient starts and initializes c, then fetches its
// tools. The registry owns c afterwards.
func NewRemoteRegistryFromClient(ctx context.Context, c *client.Client) (*RemoteRegistry, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "aguibridge",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize session: %w", err)
	}

	r := &RemoteRegistry{client: c, tools: make(map[string]*RemoteTool)}
	if err := r.Refresh(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}
	return r, nil
}

// Close closes the connection to the MCP server.
func (r *RemoteRegistry) Close() error {
	return r.client.Close()
}

// Refresh fetches the current list of tools from the MCP server.
func (r *RemoteRegistry) Refresh(ctx context.Context) error {
	result, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return err
	}

	tools := make(map[string]*RemoteTool, len(result.Tools))
	for _, t := range result.Tools {
		tools[t.Name] = &RemoteTool{
			name:        t.Name,
			description: t.Description,
			schema:      inputSchema(t),
			registry:    r,
		}
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
	return nil
}

// Tools returns the server's tools sorted by name.
func (r *RemoteRegistry) Tools() []runtime.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]runtime.Tool, 0, len(r.tools))
	for _, name := range r.namesLocked() {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Tool returns the named tool.
func (r *RemoteRegistry) Tool(name string) (runtime.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the sorted tool names.
func (r *RemoteRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *RemoteRegistry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of available tools.
func (r *RemoteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// call invokes a tool on the MCP server.
func (r *RemoteRegistry) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	if args != nil {
		req.Params.Arguments = args
	}
	result, err := r.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s: %w", name, err)
	}
	return FromMCPCallToolResult(result)
}

// RemoteTool is a backend runtime.Tool executed by an MCP server.
type RemoteTool struct {
	name        string
	description string
	schema      json.RawMessage
	registry    *RemoteRegistry
}

var _ runtime.Tool = (*RemoteTool)(nil)

func (t *RemoteTool) Name() string                { return t.name }
func (t *RemoteTool) Description() string         { return t.description }
func (t *RemoteTool) Parameters() json.RawMessage { return t.schema }
func (t *RemoteTool) LongRunning() bool           { return false }

func (t *RemoteTool) Call(ctx context.Context, _ runtime.ToolContext, args map[string]any) (map[string]any, error) {
	return t.registry.call(ctx, t.name, args)
}
