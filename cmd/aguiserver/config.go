package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server configuration loaded from environment variables.
type Config struct {
	// Server
	Port        string
	LogLevel    string // debug, info, warn, error
	LogFormat   string // text or json
	CORSOrigins []string
	Metrics     bool

	// Provider selection
	Provider string
	Model    string
	BaseURL  string

	// API Keys
	AnthropicKey string
	OpenAIKey    string
	GoogleKey    string

	// Agents
	AgentsFile  string
	AppName     string
	Instruction string
	MaxSteps    int
	MaxTokens   int
	DemoTools   bool

	// Sessions and executions
	SessionTimeout     time.Duration
	CleanupInterval    time.Duration
	ExecutionTimeout   time.Duration
	ToolTimeout        time.Duration
	MaxConcurrent      int
	MaxSessionsPerUser int
	LookupCacheSize    int

	// Remote tools
	MCPCommand string
	MCPURL     string

	// Tracing
	OTLPEndpoint string
}

// LoadConfig loads configuration from environment variables.
// It loads a .env file if present (silent fail if not found).
func LoadConfig() (*Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := &Config{
		Port:               getEnvOrDefault("AGUI_PORT", "8000"),
		LogLevel:           getEnvOrDefault("AGUI_LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("AGUI_LOG_FORMAT", "text"),
		CORSOrigins:        splitList(os.Getenv("AGUI_CORS_ORIGINS")),
		Metrics:            getEnvBoolOrDefault("AGUI_METRICS", true),
		Provider:           os.Getenv("AGUI_PROVIDER"),
		Model:              os.Getenv("AGUI_MODEL"),
		BaseURL:            os.Getenv("AGUI_BASE_URL"),
		AnthropicKey:       os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		GoogleKey:          os.Getenv("GOOGLE_API_KEY"),
		AgentsFile:         os.Getenv("AGUI_AGENTS_FILE"),
		AppName:            getEnvOrDefault("AGUI_APP_NAME", "assistant"),
		Instruction:        getEnvOrDefault("AGUI_INSTRUCTION", "You are a helpful assistant."),
		MaxSteps:           getEnvIntOrDefault("AGUI_MAX_STEPS", 10),
		MaxTokens:          getEnvIntOrDefault("AGUI_MAX_TOKENS", 0),
		DemoTools:          getEnvBoolOrDefault("AGUI_DEMO_TOOLS", true),
		SessionTimeout:     getEnvDurationOrDefault("AGUI_SESSION_TIMEOUT", 20*time.Minute),
		CleanupInterval:    getEnvDurationOrDefault("AGUI_CLEANUP_INTERVAL", 5*time.Minute),
		ExecutionTimeout:   getEnvDurationOrDefault("AGUI_EXECUTION_TIMEOUT", 10*time.Minute),
		ToolTimeout:        getEnvDurationOrDefault("AGUI_TOOL_TIMEOUT", 5*time.Minute),
		MaxConcurrent:      getEnvIntOrDefault("AGUI_MAX_CONCURRENT", 10),
		MaxSessionsPerUser: getEnvIntOrDefault("AGUI_MAX_SESSIONS_PER_USER", 0),
		LookupCacheSize:    getEnvIntOrDefault("AGUI_LOOKUP_CACHE_SIZE", 1024),
		MCPCommand:         os.Getenv("AGUI_MCP_COMMAND"),
		MCPURL:             os.Getenv("AGUI_MCP_URL"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("AGUI_PROVIDER is required (anthropic, openai, or google)")
	}

	switch c.Provider {
	case "anthropic":
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case "google":
		if c.GoogleKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for google provider")
		}
	default:
		return fmt.Errorf("unknown provider: %s (must be anthropic, openai, or google)", c.Provider)
	}

	if c.MCPCommand != "" && c.MCPURL != "" {
		return fmt.Errorf("AGUI_MCP_COMMAND and AGUI_MCP_URL are mutually exclusive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("AGUI_MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("AGUI_MAX_STEPS must be positive, got %d", c.MaxSteps)
	}

	return nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
