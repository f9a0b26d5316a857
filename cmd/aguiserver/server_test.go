package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// replyModel answers every request with text.
func replyModel(text string) llm.Model {
	return llm.ModelFunc(func(ctx context.Context, _ llm.Request) (<-chan bridge.StreamEvent, error) {
		ch := make(chan bridge.StreamEvent, 2)
		ch <- bridge.StreamEvent{Delta: text}
		ch <- bridge.StreamEvent{Done: true, Response: &bridge.Response{Content: text, FinishReason: "stop"}}
		close(ch)
		return ch, nil
	})
}

func testConfig() *Config {
	return &Config{
		AppName:          "assistant",
		Instruction:      "Be brief.",
		MaxSteps:         3,
		MaxConcurrent:    2,
		SessionTimeout:   time.Minute,
		ExecutionTimeout: time.Minute,
		ToolTimeout:      time.Minute,
		LookupCacheSize:  16,
		DemoTools:        true,
	}
}

func newTestServer(t *testing.T, cfg *Config) *server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newServer(context.Background(), cfg, replyModel("Hello!"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.close(context.Background()) })
	return s
}

func runBody(thread string) string {
	return `{"threadId":"` + thread + `","runId":"r1","messages":[{"id":"m1","role":"user","content":"hi"}]}`
}

func TestServer_RunAgent(t *testing.T) {
	s := newTestServer(t, testConfig())
	engine := s.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(runBody("t1")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: RUN_STARTED")
	assert.Contains(t, body, `"delta":"Hello!"`)
	assert.Contains(t, body, "event: RUN_FINISHED")
	assert.Less(t, strings.Index(body, "RUN_STARTED"), strings.Index(body, "TEXT_MESSAGE_CONTENT"))
}

func TestServer_NamedAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(agentsYAML), 0o600))
	cfg := testConfig()
	cfg.AgentsFile = path
	s := newTestServer(t, cfg)
	engine := s.routes()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agents/weather", strings.NewReader(runBody("t2"))))
	assert.Contains(t, rec.Body.String(), "event: RUN_FINISHED")

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agents/missing", strings.NewReader(runBody("t3"))))
	assert.Contains(t, rec.Body.String(), "event: RUN_ERROR")
	assert.Contains(t, rec.Body.String(), "AGENT_ERROR")
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, testConfig())
	engine := s.routes()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent", strings.NewReader(runBody("t4"))))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status   string   `json:"status"`
		Agents   []string `json:"agents"`
		Sessions int      `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{"assistant"}, health.Agents)
	assert.Equal(t, 1, health.Sessions)
}

func TestServer_MetricsDisabled(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	s := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/agent", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
