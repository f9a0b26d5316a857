package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/internal/retry"
	"github.com/spetersoncode/aguibridge/runtime"
)

// DefaultMaxSteps bounds the model calls of one invocation.
const DefaultMaxSteps = 10

// roleModel is the content role of model output.
const roleModel = "model"

// ErrMaxSteps is returned when the model keeps calling tools past the
// step limit.
var ErrMaxSteps = errors.New("llm: step limit reached")

// Runner is a runtime.Runner that drives a chat model in a tool loop.
//
// Each step streams the model's text as partial events, then emits the
// complete text. Calls to regular tools are executed in parallel and their
// responses fed back for another step. Calls to long-running tools are
// started, flagged on a final event, and end the invocation: their results
// arrive later as a new message.
type Runner struct {
	model     Model
	maxSteps  int
	maxTokens int
	retry     retry.Config
	logger    *slog.Logger
	now       func() time.Time
}

var _ runtime.Runner = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithMaxSteps sets the step limit. Default is 10.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithMaxTokens caps the output tokens of each model call.
func WithMaxTokens(n int) Option {
	return func(r *Runner) { r.maxTokens = n }
}

// WithRetryAttempts sets how often opening a model stream is attempted when
// it fails with a transient error. 1 disables retries.
func WithRetryAttempts(n int) Option {
	return func(r *Runner) { r.retry.MaxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner over model.
func NewRunner(model Model, opts ...Option) *Runner {
	r := &Runner{
		model:    model,
		maxSteps: DefaultMaxSteps,
		retry:    retry.DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// invocation is the state of one Run.
type invocation struct {
	runtime.Invocation
	r      *Runner
	yield  func(*runtime.Event, error) bool
	turn   []*runtime.Event
	logger *slog.Logger
}

// Run implements runtime.Runner.
func (r *Runner) Run(ctx context.Context, inv runtime.Invocation) iter.Seq2[*runtime.Event, error] {
	return func(yield func(*runtime.Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		in := &invocation{
			Invocation: inv,
			r:          r,
			yield:      yield,
			logger:     r.logger.With("invocation_id", inv.ID, "agent", inv.Agent.Name),
		}
		if err := in.run(ctx); err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// errStopped signals the consumer stopped iterating.
var errStopped = errors.New("llm: iteration stopped")

func (in *invocation) emit(ev *runtime.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.InvocationID = in.ID
	ev.Author = in.Agent.Name
	ev.Timestamp = in.r.now()
	if !ev.Partial {
		in.turn = append(in.turn, ev)
	}
	if !in.yield(ev, nil) {
		return errStopped
	}
	return nil
}

func (in *invocation) run(ctx context.Context) error {
	system := ""
	if in.Agent.Instruction != nil {
		s, err := in.Agent.Instruction.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("llm: resolve instruction: %w", err)
		}
		system = s
	}
	tools := Declarations(in.Agent.Tools)

	for step := 1; step <= in.r.maxSteps; step++ {
		history := append([]*runtime.Event(nil), in.History...)
		if in.NewMessage != nil {
			history = append(history, &runtime.Event{Author: runtime.AuthorUser, Content: in.NewMessage})
		}
		history = append(history, in.turn...)

		req := Request{
			System:    system,
			Messages:  Messages(history),
			Tools:     tools,
			MaxTokens: in.r.maxTokens,
		}
		resp, err := in.step(ctx, req)
		if err != nil {
			return err
		}
		in.logger.Debug("model step complete",
			"step", step,
			"tool_calls", len(resp.ToolCalls),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)

		done, err := in.handleResponse(ctx, resp)
		if err != nil || done {
			return err
		}
	}
	return fmt.Errorf("%w (%d)", ErrMaxSteps, in.r.maxSteps)
}

// step makes one model call, emitting its text deltas as partial events.
func (in *invocation) step(ctx context.Context, req Request) (*bridge.Response, error) {
	notify := func(attempt int, err error, delay time.Duration) {
		in.logger.Warn("retrying model call", "attempt", attempt, "delay", delay, "error", err)
	}
	stream, err := retry.DoStream(ctx, in.r.retry, notify, func() (<-chan bridge.StreamEvent, error) {
		return in.r.model.Stream(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("llm: open stream: %w", err)
	}

	for ev := range stream {
		switch {
		case ev.Err != nil:
			return nil, fmt.Errorf("llm: stream: %w", ev.Err)
		case ev.Done:
			if ev.Response == nil {
				return nil, errors.New("llm: stream finished without a response")
			}
			return ev.Response, nil
		case ev.Delta != "":
			err := in.emit(&runtime.Event{
				Content: runtime.NewTextContent(roleModel, ev.Delta),
				Partial: true,
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("llm: stream closed without a response")
}

// handleResponse emits the model's turn and runs its tool calls. It
// reports done when the invocation is over.
func (in *invocation) handleResponse(ctx context.Context, resp *bridge.Response) (bool, error) {
	calls := resp.ToolCalls
	if resp.Content != "" || len(calls) == 0 {
		ev := &runtime.Event{Content: runtime.NewTextContent(roleModel, resp.Content)}
		if len(calls) == 0 {
			ev.TurnComplete = true
			ev.FinishReason = resp.FinishReason
		}
		if err := in.emit(ev); err != nil {
			return true, err
		}
	}
	if len(calls) == 0 {
		return true, nil
	}

	var (
		resolved  []runtime.FunctionCall
		responses []runtime.FunctionResponse
		backend   []runtime.FunctionCall
		clientIDs []string
		client    []runtime.FunctionCall
	)
	for _, tc := range calls {
		fc, perr := parseCall(tc)
		tool, ok := in.Agent.Tool(fc.Name)
		switch {
		case perr != nil:
			resolved = append(resolved, fc)
			responses = append(responses, errorResponse(fc, perr))
		case !ok:
			resolved = append(resolved, fc)
			responses = append(responses, errorResponse(fc, fmt.Errorf("unknown tool %q", fc.Name)))
		case tool.LongRunning():
			// Long-running tools are started first so they can announce
			// the call themselves.
			if _, err := tool.Call(ctx, in.toolContext(fc), fc.Args); err != nil {
				if ctx.Err() != nil {
					return true, ctx.Err()
				}
				in.logger.Warn("long-running tool rejected call", "tool", fc.Name, "tool_call_id", fc.ID, "error", err)
				resolved = append(resolved, fc)
				responses = append(responses, errorResponse(fc, err))
				continue
			}
			client = append(client, fc)
			clientIDs = append(clientIDs, fc.ID)
		default:
			backend = append(backend, fc)
		}
	}

	if len(backend)+len(resolved) > 0 {
		if err := in.emit(callEvent(append(backend, resolved...))); err != nil {
			return true, err
		}
		results, err := in.execute(ctx, backend)
		if err != nil {
			return true, err
		}
		ev := &runtime.Event{Content: runtime.NewFunctionResponseContent(append(results, responses...)...)}
		if err := in.emit(ev); err != nil {
			return true, err
		}
	}

	if len(client) > 0 {
		ev := callEvent(client)
		ev.LongRunningToolIDs = clientIDs
		return true, in.emit(ev)
	}
	return false, nil
}

func callEvent(calls []runtime.FunctionCall) *runtime.Event {
	parts := make([]runtime.Part, 0, len(calls))
	for i := range calls {
		parts = append(parts, runtime.Part{FunctionCall: &calls[i]})
	}
	return &runtime.Event{Content: &runtime.Content{Role: roleModel, Parts: parts}}
}

func (in *invocation) toolContext(fc runtime.FunctionCall) runtime.ToolContext {
	return runtime.ToolContext{FunctionCallID: fc.ID, InvocationID: in.ID, SessionID: in.SessionID}
}

// execute runs backend tool calls in parallel. Tool failures become error
// responses; only cancellation of ctx fails the step.
func (in *invocation) execute(ctx context.Context, calls []runtime.FunctionCall) ([]runtime.FunctionResponse, error) {
	results := make([]runtime.FunctionResponse, len(calls))
	var g errgroup.Group
	for i, fc := range calls {
		g.Go(func() error {
			results[i] = in.call(ctx, fc)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (in *invocation) call(ctx context.Context, fc runtime.FunctionCall) runtime.FunctionResponse {
	tool, _ := in.Agent.Tool(fc.Name)
	if in.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.ToolTimeout)
		defer cancel()
	}

	started := time.Now()
	out, err := tool.Call(ctx, in.toolContext(fc), fc.Args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("tool timed out after %s", in.ToolTimeout)
		}
		in.logger.Warn("tool call failed", "tool", fc.Name, "tool_call_id", fc.ID, "error", err)
		return errorResponse(fc, err)
	}
	in.logger.Debug("tool call complete", "tool", fc.Name, "tool_call_id", fc.ID, "duration", time.Since(started))
	if out == nil {
		out = map[string]any{}
	}
	return runtime.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: out}
}

func errorResponse(fc runtime.FunctionCall, err error) runtime.FunctionResponse {
	return runtime.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: map[string]any{"error": err.Error()}}
}

// parseCall decodes the call's JSON arguments, repairing them when the
// model produced malformed JSON. A call without an id gets one.
func parseCall(tc bridge.ToolCall) (runtime.FunctionCall, error) {
	fc := runtime.FunctionCall{ID: tc.ID, Name: tc.Name}
	if fc.ID == "" {
		fc.ID = bridge.NewCallID()
	}
	if tc.Arguments == "" {
		return fc, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(tc.Arguments)
		if repairErr != nil {
			return fc, fmt.Errorf("invalid arguments for %s: %w", tc.Name, err)
		}
		if err := json.Unmarshal([]byte(fixed), &args); err != nil {
			return fc, fmt.Errorf("invalid arguments for %s: %w", tc.Name, err)
		}
	}
	fc.Args = args
	return fc, nil
}
