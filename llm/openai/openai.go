// Package openai implements llm.Model over the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/llm"
)

// ChatModel is an OpenAI chat model name.
type ChatModel string

const (
	GPT52    ChatModel = "gpt-5.2"
	GPT51    ChatModel = "gpt-5.1"
	GPT5     ChatModel = "gpt-5"
	GPT5Mini ChatModel = "gpt-5-mini"
	GPT5Nano ChatModel = "gpt-5-nano"
	GPT4o    ChatModel = "gpt-4o"
	O4Mini   ChatModel = "o4-mini"

	DefaultChatModel ChatModel = GPT52
)

func (m ChatModel) String() string { return string(m) }

// Client streams chat completions from OpenAI or a compatible endpoint.
type Client struct {
	client *openai.Client
	model  ChatModel
}

var _ llm.Model = (*Client)(nil)

// ClientOption configures the OpenAI client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	model   ChatModel
	baseURL string
}

// WithModel sets the model for requests.
func WithModel(model ChatModel) ClientOption {
	return func(c *clientConfig) { c.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) { c.baseURL = url }
}

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...ClientOption) *Client {
	cfg := clientConfig{model: DefaultChatModel}
	for _, opt := range opts {
		opt(&cfg)
	}
	// Retries are left to the caller.
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &Client{client: &client, model: cfg.model}
}

// Stream implements llm.Model.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan bridge.StreamEvent, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model.String(),
		Messages: convertMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan bridge.StreamEvent)

	go func() {
		defer close(ch)
		defer stream.Close()

		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !llm.Send(ctx, ch, bridge.StreamEvent{Delta: chunk.Choices[0].Delta.Content}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			llm.Send(ctx, ch, bridge.StreamEvent{Err: wrapError(err)})
			return
		}
		if len(acc.Choices) == 0 {
			llm.Send(ctx, ch, bridge.StreamEvent{Err: errors.New("openai: stream returned no choices")})
			return
		}

		completion := acc.Choices[0]
		llm.Send(ctx, ch, bridge.StreamEvent{
			Done: true,
			Response: &bridge.Response{
				Content:      completion.Message.Content,
				FinishReason: string(completion.FinishReason),
				Usage: bridge.Usage{
					InputTokens:  int(acc.Usage.PromptTokens),
					OutputTokens: int(acc.Usage.CompletionTokens),
				},
				ToolCalls: extractToolCalls(completion.Message.ToolCalls),
			},
		})
	}()

	return ch, nil
}

// wrapError categorizes OpenAI API errors by status code and Retry-After.
func wrapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return llm.StatusError(err, apiErr.StatusCode, llm.ParseRetryAfter(apiErr.Response))
}
