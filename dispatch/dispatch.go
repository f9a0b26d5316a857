// Package dispatch serves AG-UI run requests over Server-Sent Events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/gin-gonic/gin"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/internal/metrics"
)

// Agent streams the AG-UI events of one run. *execution.Manager satisfies it.
type Agent interface {
	Run(ctx context.Context, in *agui.RunAgentInput) <-chan events.Event
}

// Selector picks the agent serving a request.
type Selector func(ctx context.Context, in *agui.RunAgentInput) (Agent, error)

// InputTransformer rewrites a request before an agent is selected. The
// returned events are sent right after the first event of the run.
type InputTransformer func(ctx context.Context, in *agui.RunAgentInput) (*agui.RunAgentInput, []events.Event, error)

// ErrUnknownAgent is returned by PathSelector for names it does not serve.
var ErrUnknownAgent = errors.New("dispatch: unknown agent")

// Raw frames written when not even a RUN_ERROR can be encoded.
const (
	fallbackEncodingFrame = "event: error\ndata: {\"error\": \"Event encoding failed\"}\n\n"
	fallbackAgentFrame    = "event: error\ndata: {\"error\": \"Agent execution failed\"}\n\n"
)

// Handler is the SSE endpoint.
type Handler struct {
	selector  Selector
	transform InputTransformer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithInputTransformer installs a request transformer.
func WithInputTransformer(fn InputTransformer) Option {
	return func(h *Handler) { h.transform = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

// WithMetrics records encoding failures.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Handler) { h.metrics = m } }

// New creates a Handler that serves each request with the agent selector
// returns.
func New(selector Selector, opts ...Option) *Handler {
	h := &Handler{selector: selector, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// SingleAgent serves every request with a.
func SingleAgent(a Agent) Selector {
	return func(context.Context, *agui.RunAgentInput) (Agent, error) { return a, nil }
}

type agentNameKey struct{}

// WithAgentName stores the requested agent name in ctx.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey{}, name)
}

// AgentName returns the agent name stored by WithAgentName.
func AgentName(ctx context.Context) string {
	name, _ := ctx.Value(agentNameKey{}).(string)
	return name
}

// PathSelector serves requests with the agent registered under the name in
// the request context, as set by the Gin handler's :name parameter.
func PathSelector(agents map[string]Agent) Selector {
	return func(ctx context.Context, _ *agui.RunAgentInput) (Agent, error) {
		name := AgentName(ctx)
		a, ok := agents[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
		}
		return a, nil
	}
}

// Gin returns a Gin handler. A :name path parameter, when present, is made
// available to the selector through AgentName.
func (h *Handler) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if name := c.Param("name"); name != "" {
			ctx = WithAgentName(ctx, name)
		}
		h.serve(c.Writer, c.Request.WithContext(ctx))
	}
}

// ServeHTTP handles POST requests carrying a RunAgentInput.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		h.logger.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("read request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	in, err := agui.Decode(body)
	if err != nil {
		h.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	log := h.logger.With("thread_id", in.ThreadID, "run_id", in.RunID)
	log.Info("request started", "message_count", len(in.Messages), "client_tools", len(in.Tools))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sw := &sseWriter{w: w, flusher: flusher}
	sent, err := h.stream(ctx, sw, in, log)

	duration := time.Since(start)
	if err != nil {
		log.Error("request failed", "duration_ms", duration.Milliseconds(), "events_sent", sent, "error", err)
		return
	}
	log.Info("request completed", "duration_ms", duration.Milliseconds(), "events_sent", sent)
}

// stream writes the run's events. Returning cancels the run.
func (h *Handler) stream(ctx context.Context, sw *sseWriter, in *agui.RunAgentInput, log *slog.Logger) (int, error) {
	var pre []events.Event
	if h.transform != nil {
		out, extra, err := h.transform(ctx, in)
		if err != nil {
			return 0, h.agentError(sw, in, err, log)
		}
		in, pre = out, extra
	}

	agent, err := h.selector(ctx, in)
	if err != nil {
		return 0, h.agentError(sw, in, err, log)
	}

	sent := 0
	first := true
	for ev := range agent.Run(ctx, in) {
		batch := []events.Event{ev}
		if first {
			batch = append(batch, pre...)
			first = false
		}
		for _, out := range batch {
			if err := sw.write(out); err != nil {
				var ee *encodeError
				if errors.As(err, &ee) {
					return sent, h.encodingError(sw, in, ee, log)
				}
				return sent, err
			}
			sent++
			log.Debug("sent SSE event", "event_type", out.Type(), "event_num", sent)
		}
	}
	return sent, nil
}

func (h *Handler) agentError(sw *sseWriter, in *agui.RunAgentInput, err error, log *slog.Logger) error {
	log.Error("agent execution failed", "error", err)
	h.metrics.RunError(string(bridge.CodeAgent))
	ev := agui.NewMapper(in.ThreadID, in.RunID).RunErrorCode(bridge.CodeAgent, "Agent execution failed: "+err.Error())
	if werr := sw.write(ev); werr != nil {
		log.Error("write agent error event", "error", werr)
		sw.raw(fallbackAgentFrame)
	}
	return err
}

func (h *Handler) encodingError(sw *sseWriter, in *agui.RunAgentInput, err *encodeError, log *slog.Logger) error {
	log.Error("event encoding failed", "error", err)
	h.metrics.RunError(string(bridge.CodeEncoding))
	ev := agui.NewMapper(in.ThreadID, in.RunID).RunErrorCode(bridge.CodeEncoding, "Event encoding failed: "+err.err.Error())
	if werr := sw.write(ev); werr != nil {
		log.Error("write encoding error event", "error", werr)
		sw.raw(fallbackEncodingFrame)
	}
	return err
}
