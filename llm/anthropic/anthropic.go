// Package anthropic implements llm.Model over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/llm"
)

// ChatModel is an Anthropic model name.
type ChatModel string

const (
	ClaudeOpus45   ChatModel = "claude-opus-4-5"
	ClaudeSonnet45 ChatModel = "claude-sonnet-4-5"
	ClaudeHaiku45  ChatModel = "claude-haiku-4-5"

	DefaultChatModel ChatModel = ClaudeSonnet45
)

func (m ChatModel) String() string { return string(m) }

// defaultMaxTokens is sent when the request sets no limit; the API
// requires one.
const defaultMaxTokens = 4096

// Client streams messages from Anthropic.
type Client struct {
	client anthropic.Client
	model  ChatModel
}

var _ llm.Model = (*Client)(nil)

type clientConfig struct {
	model   ChatModel
	baseURL string
}

// ClientOption configures the Anthropic client.
type ClientOption func(*clientConfig)

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *clientConfig) { c.model = model }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) { c.baseURL = url }
}

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := clientConfig{model: DefaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Client{client: anthropic.NewClient(reqOpts...), model: cfg.model}
}

// Stream implements llm.Model.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan bridge.StreamEvent, error) {
	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model.String()),
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	ch := make(chan bridge.StreamEvent)

	go func() {
		defer close(ch)
		defer stream.Close()

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				llm.Send(ctx, ch, bridge.StreamEvent{Err: err})
				return
			}
			if event.Type != "content_block_delta" {
				continue
			}
			if text := event.AsContentBlockDelta().Delta.AsTextDelta(); text.Type == "text_delta" && text.Text != "" {
				if !llm.Send(ctx, ch, bridge.StreamEvent{Delta: text.Text}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			llm.Send(ctx, ch, bridge.StreamEvent{Err: wrapError(err)})
			return
		}

		content := ""
		var toolCalls []bridge.ToolCall
		for _, block := range acc.Content {
			switch block.Type {
			case "text":
				content += block.Text
			case "tool_use":
				toolCalls = append(toolCalls, bridge.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: string(block.Input),
				})
			}
		}
		llm.Send(ctx, ch, bridge.StreamEvent{
			Done: true,
			Response: &bridge.Response{
				Content:      content,
				FinishReason: string(acc.StopReason),
				Usage: bridge.Usage{
					InputTokens:  int(acc.Usage.InputTokens),
					OutputTokens: int(acc.Usage.OutputTokens),
				},
				ToolCalls: toolCalls,
			},
		})
	}()

	return ch, nil
}

func convertMessages(messages []bridge.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case bridge.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			// Empty text blocks are rejected by the API.
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
			}
		case bridge.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})
			}
		case bridge.RoleSystem, bridge.RoleDeveloper:
			// The instruction travels in the system field.
		default:
			if msg.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return result
}

func convertTools(tools []bridge.ToolDeclaration) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schema)
		}
		var required []string
		if reqVal, ok := schema["required"].([]any); ok {
			for _, r := range reqVal {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return result
}

// wrapError categorizes Anthropic API errors by status code and Retry-After.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return llm.StatusError(err, apiErr.StatusCode, llm.ParseRetryAfter(apiErr.Response))
}
