package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/spetersoncode/aguibridge/dispatch"
	"github.com/spetersoncode/aguibridge/execution"
	"github.com/spetersoncode/aguibridge/internal/metrics"
	"github.com/spetersoncode/aguibridge/llm"
	"github.com/spetersoncode/aguibridge/llm/anthropic"
	"github.com/spetersoncode/aguibridge/llm/google"
	"github.com/spetersoncode/aguibridge/llm/openai"
	"github.com/spetersoncode/aguibridge/mcp"
	"github.com/spetersoncode/aguibridge/runtime"
	"github.com/spetersoncode/aguibridge/session"
)

const serviceName = "aguibridge"

// server wires the configured agents to HTTP routes.
type server struct {
	cfg      *Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sessions *session.Manager
	main     *execution.Manager
	named    map[string]*execution.Manager
	remote   *mcp.RemoteRegistry
}

// newModel creates the streaming model for the configured provider.
func newModel(ctx context.Context, cfg *Config) (llm.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		opts := []anthropic.ClientOption{}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(anthropic.ChatModel(cfg.Model)))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.AnthropicKey, opts...), nil
	case "openai":
		opts := []openai.ClientOption{}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(openai.ChatModel(cfg.Model)))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.OpenAIKey, opts...), nil
	case "google":
		opts := []google.ClientOption{}
		if cfg.Model != "" {
			opts = append(opts, google.WithModel(google.ChatModel(cfg.Model)))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(cfg.BaseURL))
		}
		return google.New(ctx, cfg.GoogleKey, opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// connectMCP connects to the configured MCP server, if any.
func connectMCP(ctx context.Context, cfg *Config) (*mcp.RemoteRegistry, error) {
	switch {
	case cfg.MCPCommand != "":
		fields := strings.Fields(cfg.MCPCommand)
		return mcp.NewRemoteRegistry(ctx, fields[0], nil, fields[1:]...)
	case strings.HasSuffix(cfg.MCPURL, "/sse"):
		return mcp.NewRemoteRegistrySSE(ctx, cfg.MCPURL)
	case cfg.MCPURL != "":
		return mcp.NewRemoteRegistryHTTP(ctx, cfg.MCPURL)
	default:
		return nil, nil
	}
}

// newServer builds the session manager and one execution manager per agent.
// The default agent is named after cfg.AppName and serves /api/agent.
func newServer(ctx context.Context, cfg *Config, model llm.Model, logger *slog.Logger) (*server, error) {
	s := &server{cfg: cfg, logger: logger, named: make(map[string]*execution.Manager)}
	if cfg.Metrics {
		s.metrics = metrics.Default()
	}

	remote, err := connectMCP(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect MCP server: %w", err)
	}
	s.remote = remote

	var tools []runtime.Tool
	if cfg.DemoTools {
		tools = append(tools, demoTools()...)
	}
	if remote != nil {
		tools = append(tools, remote.Tools()...)
		logger.Info("registered MCP tools", "count", remote.Len(), "names", remote.Names())
	}

	s.sessions = session.NewManager(session.NewMemoryStore(),
		session.WithTimeout(cfg.SessionTimeout),
		session.WithCleanupInterval(cfg.CleanupInterval),
		session.WithMaxSessionsPerUser(cfg.MaxSessionsPerUser),
		session.WithLogger(logger),
		session.WithMetrics(s.metrics),
	)

	runner := llm.NewRunner(model,
		llm.WithMaxSteps(cfg.MaxSteps),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithLogger(logger),
	)

	agent := &runtime.Agent{
		Name:        cfg.AppName,
		Instruction: runtime.StaticInstruction(cfg.Instruction),
		Tools:       tools,
	}
	if s.main, err = s.newManager(runner, agent); err != nil {
		s.close(ctx)
		return nil, err
	}

	if cfg.AgentsFile != "" {
		file, err := LoadAgents(cfg.AgentsFile)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		for _, def := range file.Agents {
			agent, err := def.Build(tools)
			if err != nil {
				s.close(ctx)
				return nil, err
			}
			m, err := s.newManager(runner, agent)
			if err != nil {
				s.close(ctx)
				return nil, err
			}
			s.named[def.Name] = m
		}
		logger.Info("loaded agents", "file", cfg.AgentsFile, "count", len(s.named))
	}
	return s, nil
}

func (s *server) newManager(runner runtime.Runner, agent *runtime.Agent) (*execution.Manager, error) {
	m, err := execution.NewManager(runner, agent, s.sessions,
		execution.WithExecutionTimeout(s.cfg.ExecutionTimeout),
		execution.WithToolTimeout(s.cfg.ToolTimeout),
		execution.WithMaxConcurrent(s.cfg.MaxConcurrent),
		execution.WithLookupCacheSize(s.cfg.LookupCacheSize),
		execution.WithLogger(s.logger),
		execution.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", agent.Name, err)
	}
	return m, nil
}

// routes builds the gin engine.
func (s *server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	engine.Use(cors.New(corsConfig))

	opts := []dispatch.Option{dispatch.WithLogger(s.logger), dispatch.WithMetrics(s.metrics)}
	engine.POST("/api/agent", dispatch.New(dispatch.SingleAgent(s.main), opts...).Gin())

	named := make(map[string]dispatch.Agent, len(s.named))
	for name, m := range s.named {
		named[name] = m
	}
	engine.POST("/api/agents/:name", dispatch.New(dispatch.PathSelector(named), opts...).Gin())

	engine.GET("/health", s.health)
	if s.cfg.Metrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return engine
}

func (s *server) health(c *gin.Context) {
	executions := s.main.ActiveExecutions()
	agents := []string{s.main.Agent().Name}
	for name, m := range s.named {
		agents = append(agents, name)
		for thread, status := range m.ActiveExecutions() {
			executions[name+"/"+thread] = status
		}
	}
	slices.Sort(agents[1:])

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"agents":     agents,
		"sessions":   s.sessions.SessionCount(),
		"executions": executions,
	})
}

// close cancels every execution and disconnects the MCP server.
func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.main != nil {
		errs = append(errs, s.main.Close(ctx))
	}
	for _, m := range s.named {
		errs = append(errs, m.Close(ctx))
	}
	if s.sessions != nil {
		s.sessions.Stop()
	}
	if s.remote != nil {
		errs = append(errs, s.remote.Close())
	}
	return errors.Join(errs...)
}

// setupTracing installs an OTLP tracer provider when an endpoint is
// configured. The returned function flushes pending spans.
func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
