package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/llm"
)

func sseServer(t *testing.T, body *map[string]any, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		if body != nil {
			require.NoError(t, json.Unmarshal(data, body))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(delta string, finish string) string {
	f := "null"
	if finish != "" {
		f = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"cc-1","object":"chat.completion.chunk","created":1,"model":"gpt-5.2","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`, delta, f)
}

func collect(t *testing.T, ch <-chan bridge.StreamEvent) ([]string, *bridge.Response, error) {
	t.Helper()
	var deltas []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return deltas, nil, nil
			}
			if ev.Err != nil {
				return deltas, nil, ev.Err
			}
			if ev.Done {
				return deltas, ev.Response, nil
			}
			deltas = append(deltas, ev.Delta)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestClient_StreamText(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, &body,
		chunk(`{"role":"assistant","content":"Hel"}`, ""),
		chunk(`{"content":"lo"}`, ""),
		chunk(`{}`, "stop"),
	)
	c := New("test-key", WithBaseURL(srv.URL+"/"), WithModel(GPT5Mini))

	ch, err := c.Stream(context.Background(), llm.Request{
		System: "Be brief.",
		Messages: []bridge.Message{
			{Role: bridge.RoleUser, Content: "hi"},
			{Role: bridge.RoleAssistant, ToolCalls: []bridge.ToolCall{{ID: "c1", Name: "add", Arguments: `{}`}}},
			{Role: bridge.RoleTool, ToolResults: []bridge.ToolResult{{ToolCallID: "c1", Content: `{"sum":0}`}}},
		},
		Tools:     []bridge.ToolDeclaration{{Name: "add", Parameters: bridge.EmptyObjectSchema}},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	deltas, resp, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, resp)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "gpt-5-mini", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.(map[string]any)["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool"}, roles)
	assert.Equal(t, "c1", msgs[3].(map[string]any)["tool_call_id"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].(map[string]any)["function"].(map[string]any)["name"])
}

func TestClient_StreamToolCalls(t *testing.T) {
	srv := sseServer(t, nil,
		chunk(`{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":"}}]}`, ""),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}`, ""),
		chunk(`{}`, "tool_calls"),
	)
	c := New("test-key", WithBaseURL(srv.URL+"/"))

	ch, err := c.Stream(context.Background(), llm.Request{Messages: []bridge.Message{{Role: bridge.RoleUser, Content: "add"}}})
	require.NoError(t, err)
	_, resp, err := collect(t, ch)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []bridge.ToolCall{{ID: "call_1", Name: "add", Arguments: `{"a":1}`}}, resp.ToolCalls)
}

func TestClient_ErrorCategories(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(error) bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "2", check: bridge.IsTransient},
		{name: "unauthorized", status: http.StatusUnauthorized, check: bridge.IsPermanent},
		{name: "bad request", status: http.StatusBadRequest, check: bridge.IsUserInput},
		{name: "server error", status: http.StatusInternalServerError, check: bridge.IsTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			}))
			defer srv.Close()

			c := New("test-key", WithBaseURL(srv.URL+"/"))
			ch, err := c.Stream(context.Background(), llm.Request{Messages: []bridge.Message{{Role: bridge.RoleUser, Content: "x"}}})
			require.NoError(t, err)
			_, _, err = collect(t, ch)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected category for %v", err)
			assert.Equal(t, tt.status, bridge.StatusCodeOf(err))
			if tt.retryAfter != "" {
				assert.Equal(t, 2*time.Second, bridge.RetryAfterOf(err))
			}
		})
	}
}
