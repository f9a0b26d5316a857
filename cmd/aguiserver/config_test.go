package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("AGUI_PROVIDER", "openai")
	t.Setenv("AGUI_TOOL_TIMEOUT", "90s")
	t.Setenv("AGUI_MAX_CONCURRENT", "not-a-number")
	t.Setenv("AGUI_CORS_ORIGINS", "http://localhost:3000, https://app.example.com ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 90*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 10, cfg.MaxConcurrent, "invalid values fall back to the default")
	assert.Equal(t, 20*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 10*time.Minute, cfg.ExecutionTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.Metrics)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Provider: "anthropic", AnthropicKey: "k", MaxConcurrent: 1, MaxSteps: 1}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing provider", mutate: func(c *Config) { c.Provider = "" }, wantErr: "AGUI_PROVIDER is required"},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "vertex" }, wantErr: "unknown provider"},
		{name: "missing key", mutate: func(c *Config) { c.AnthropicKey = "" }, wantErr: "ANTHROPIC_API_KEY"},
		{name: "google key", mutate: func(c *Config) { c.Provider = "google" }, wantErr: "GOOGLE_API_KEY"},
		{
			name:    "two MCP sources",
			mutate:  func(c *Config) { c.MCPCommand = "tools"; c.MCPURL = "http://localhost:9000/mcp" },
			wantErr: "mutually exclusive",
		},
		{name: "no concurrency", mutate: func(c *Config) { c.MaxConcurrent = 0 }, wantErr: "AGUI_MAX_CONCURRENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
