// Command aguiserver exposes agents to AG-UI frontends over Server-Sent
// Events.
//
// Configuration is via environment variables (a .env file is loaded when
// present):
//
//	AGUI_PORT                  - Server port (default: 8000)
//	AGUI_LOG_LEVEL             - debug, info, warn, or error (default: info)
//	AGUI_PROVIDER              - Provider: anthropic, openai, or google (required)
//	AGUI_MODEL                 - Model override (optional, uses provider default)
//	AGUI_AGENTS_FILE           - YAML file of agents served at /api/agents/:name
//	AGUI_APP_NAME              - Name of the default agent (default: assistant)
//	AGUI_SESSION_TIMEOUT       - Idle session lifetime (default: 20m)
//	AGUI_EXECUTION_TIMEOUT     - Execution lifetime (default: 10m)
//	AGUI_TOOL_TIMEOUT          - Client tool wait (default: 5m)
//	AGUI_MAX_CONCURRENT        - Concurrent executions per agent (default: 10)
//	AGUI_MCP_COMMAND           - MCP server to spawn for backend tools
//	AGUI_MCP_URL               - MCP server URL for backend tools
//	OTEL_EXPORTER_OTLP_ENDPOINT - Export traces over OTLP/HTTP
//	ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY
//
// Usage:
//
//	AGUI_PROVIDER=anthropic aguiserver serve
//	aguiserver mcp
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/spetersoncode/aguibridge/mcp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "aguiserver",
		Short:        "Serve agents to AG-UI frontends over SSE",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMCPCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var port, agentsFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the AG-UI HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if agentsFile != "" {
				cfg.AgentsFile = agentsFile
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides AGUI_PORT)")
	cmd.Flags().StringVarP(&agentsFile, "agents", "a", "", "agents YAML file (overrides AGUI_AGENTS_FILE)")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the built-in tools as an MCP server over stdio",
		RunE: func(*cobra.Command, []string) error {
			return mcp.ServeStdio(demoTools(),
				mcp.WithName("aguibridge-tools"),
				mcp.WithVersion("1.0.0"),
			)
		},
	}
}

func serve(ctx context.Context, cfg *Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cfg.Logger()
	slog.SetDefault(logger)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	model, err := newModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	srv, err := newServer(ctx, cfg, model, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("AG-UI server starting",
			"port", cfg.Port,
			"provider", cfg.Provider,
			"agent", cfg.AppName,
			"named_agents", len(srv.named),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			srv.close(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cancelling executions ends their SSE streams so Shutdown can drain.
	var errs []error
	errs = append(errs, srv.close(shutdownCtx))
	errs = append(errs, httpServer.Shutdown(shutdownCtx))
	errs = append(errs, shutdownTracing(shutdownCtx))
	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
