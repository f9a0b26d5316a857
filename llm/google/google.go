// Package google implements llm.Model over the Gemini API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/llm"
)

// ChatModel is a Gemini model name.
type ChatModel string

const (
	Gemini3Pro     ChatModel = "gemini-3-pro-preview"
	Gemini25Pro    ChatModel = "gemini-2.5-pro"
	Gemini25Flash  ChatModel = "gemini-2.5-flash"
	Gemini25FlashL ChatModel = "gemini-2.5-flash-lite"

	DefaultChatModel ChatModel = Gemini25Flash
)

func (m ChatModel) String() string { return string(m) }

// BlockedError is returned when Gemini refuses a prompt.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "google: prompt blocked: " + e.Reason
}

// Client streams content from Gemini.
type Client struct {
	client *genai.Client
	model  ChatModel
}

var _ llm.Model = (*Client)(nil)

type clientConfig struct {
	model   ChatModel
	baseURL string
}

// ClientOption configures the Google client.
type ClientOption func(*clientConfig)

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *clientConfig) { c.model = model }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) { c.baseURL = url }
}

// New creates a new Gemini client with the given API key.
func New(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{model: DefaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &Client{client: client, model: cfg.model}, nil
}

// Stream implements llm.Model.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan bridge.StreamEvent, error) {
	contents := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = convertTools(req.Tools)
	}

	ch := make(chan bridge.StreamEvent)
	go func() {
		defer close(ch)

		var (
			content      string
			finishReason string
			usage        bridge.Usage
			parts        []*genai.Part
			chunks       int
		)
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model.String(), contents, config) {
			chunks++
			if err != nil {
				llm.Send(ctx, ch, bridge.StreamEvent{Err: wrapError(err)})
				return
			}
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				llm.Send(ctx, ch, bridge.StreamEvent{Err: &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}})
				return
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					parts = append(parts, part)
					if part.Text == "" || part.Thought {
						continue
					}
					content += part.Text
					if !llm.Send(ctx, ch, bridge.StreamEvent{Delta: part.Text}) {
						return
					}
				}
			}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				finishReason = string(resp.Candidates[0].FinishReason)
			}
			if resp.UsageMetadata != nil {
				usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
		}
		if chunks == 0 {
			llm.Send(ctx, ch, bridge.StreamEvent{Err: errors.New("google: stream returned no data")})
			return
		}

		llm.Send(ctx, ch, bridge.StreamEvent{
			Done: true,
			Response: &bridge.Response{
				Content:      content,
				FinishReason: finishReason,
				Usage:        usage,
				ToolCalls:    extractToolCalls(parts),
			},
		})
	}()
	return ch, nil
}

func convertMessages(messages []bridge.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		var parts []*genai.Part
		role := string(genai.RoleUser)

		switch msg.Role {
		case bridge.RoleSystem, bridge.RoleDeveloper:
			// The instruction travels in SystemInstruction.
			continue
		case bridge.RoleAssistant:
			role = string(genai.RoleModel)
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
		case bridge.RoleTool:
			for _, tr := range msg.ToolResults {
				var result map[string]any
				if err := json.Unmarshal([]byte(tr.Content), &result); err != nil || result == nil {
					result = map[string]any{"result": tr.Content}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       tr.ToolCallID,
					Name:     tr.Name,
					Response: result,
				}})
			}
		default:
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	return contents
}

func convertTools(tools []bridge.ToolDeclaration) []*genai.Tool {
	funcs := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schema)
		}
		funcs[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: funcs}}
}

// extractToolCalls collects function calls. Gemini may omit call ids, in
// which case one is generated.
func extractToolCalls(parts []*genai.Part) []bridge.ToolCall {
	var calls []bridge.ToolCall
	for _, part := range parts {
		if part.FunctionCall == nil {
			continue
		}
		args := []byte("{}")
		if len(part.FunctionCall.Args) > 0 {
			args, _ = json.Marshal(part.FunctionCall.Args)
		}
		id := part.FunctionCall.ID
		if id == "" {
			id = bridge.NewCallID()
		}
		calls = append(calls, bridge.ToolCall{
			ID:        id,
			Name:      part.FunctionCall.Name,
			Arguments: string(args),
		})
	}
	return calls
}

// wrapError categorizes Gemini API errors by status code. The API error
// does not expose headers, so Retry-After is not available.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return llm.StatusError(err, apiErr.Code, 0)
}
