package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/internal/keylock"
	"github.com/spetersoncode/aguibridge/runtime"
	"github.com/spetersoncode/aguibridge/session"
)

// Manager turns AG-UI run requests into executions of an agent runtime.
//
// It works out which messages of a request are new, runs at most one
// execution per thread at a time, and streams the translated events back.
// Client tool calls are tracked as pending on the thread's session until
// a later request carries their results.
type Manager struct {
	runner   runtime.Runner
	agent    *runtime.Agent
	sessions *session.Manager
	cfg      config
	logger   *slog.Logger
	lookup   *lookupCache

	// classifying serializes classification per thread so two requests
	// never claim the same message.
	classifying keylock.Map

	mu         sync.Mutex
	executions map[string]*Execution
	closed     bool
}

// NewManager creates a Manager driving agent through runner, keeping
// sessions in sessions.
func NewManager(runner runtime.Runner, agent *runtime.Agent, sessions *session.Manager, opts ...Option) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("execution: nil runner")
	}
	if agent == nil {
		return nil, errors.New("execution: nil agent")
	}
	if sessions == nil {
		return nil, errors.New("execution: nil session manager")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	lookup, err := newLookupCache(cfg.lookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("execution: lookup cache: %w", err)
	}
	return &Manager{
		runner:     runner,
		agent:      agent,
		sessions:   sessions,
		cfg:        cfg,
		logger:     cfg.logger.With("agent", agent.Name),
		lookup:     lookup,
		executions: make(map[string]*Execution),
	}, nil
}

// Agent returns the agent definition executions start from.
func (m *Manager) Agent() *runtime.Agent { return m.agent }

// Sessions returns the session manager.
func (m *Manager) Sessions() *session.Manager { return m.sessions }

// AppName resolves the application name for a request: the static name,
// then the extractor, then the agent name.
func (m *Manager) AppName(in *agui.RunAgentInput) string {
	switch {
	case m.cfg.appName != "":
		return m.cfg.appName
	case m.cfg.appNameExtractor != nil:
		return m.cfg.appNameExtractor(in)
	case m.agent.Name != "":
		return m.agent.Name
	default:
		return defaultAppName
	}
}

// UserID resolves the user id for a request: the static id, then the
// extractor, then one user per thread.
func (m *Manager) UserID(in *agui.RunAgentInput) string {
	switch {
	case m.cfg.userID != "":
		return m.cfg.userID
	case m.cfg.userIDExtractor != nil:
		return m.cfg.userIDExtractor(in)
	default:
		return "thread_user_" + in.ThreadID
	}
}

// ActiveExecutions returns the status of each registered execution by
// thread id.
func (m *Manager) ActiveExecutions() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.executions))
	for thread, e := range m.executions {
		out[thread] = e.Status()
	}
	return out
}

// request is the per-run context shared by the manager and driver.
type request struct {
	input  *agui.RunAgentInput
	ref    session.Ref
	mapper *agui.Mapper
	logger *slog.Logger
}

// job is the input of one execution.
type job struct {
	toolMessages []events.Message
	toolResults  []runtime.FunctionResponse
	messages     []events.Message
}

type emitFunc func(events.Event) bool

// Run processes a run request and returns its event stream. The channel is
// closed after the last event. Cancelling ctx abandons the stream and
// cancels the execution serving it.
func (m *Manager) Run(ctx context.Context, in *agui.RunAgentInput) <-chan events.Event {
	out := make(chan events.Event)
	emit := func(ev events.Event) bool {
		select {
		case out <- ev:
			m.cfg.metrics.EventEmitted(string(ev.Type()))
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(out)
		m.run(ctx, in, emit)
	}()
	return out
}

func (m *Manager) run(ctx context.Context, in *agui.RunAgentInput, emit emitFunc) {
	if err := in.Validate(); err != nil {
		mapper := agui.NewMapper(in.ThreadID, in.RunID)
		m.cfg.metrics.RunError(string(bridge.CodeExecution))
		emit(mapper.RunErrorCode(bridge.CodeExecution, err.Error()))
		return
	}

	ref := session.Ref{AppName: m.AppName(in), UserID: m.UserID(in), ID: in.ThreadID}
	req := &request{
		input:  in,
		ref:    ref,
		mapper: agui.NewMapper(in.ThreadID, in.RunID),
		logger: m.logger.With("thread_id", in.ThreadID, "run_id", in.RunID),
	}

	plan := m.classify(ctx, ref, in.Messages)
	req.logger.Debug("classified run request",
		"messages", len(in.Messages),
		"unseen", plan.Unseen,
		"batches", len(plan.Batches),
		"consumed", len(plan.Consumed),
	)

	if plan.Unseen == 0 {
		m.startNewExecution(ctx, req, emit, job{})
		return
	}
	if len(plan.Batches) == 0 {
		// Everything new was already reflected in history or stale.
		if emit(req.mapper.RunStarted()) {
			emit(req.mapper.RunFinished())
		}
		return
	}

	for _, b := range plan.Batches {
		var ok bool
		if b.IsToolBatch() {
			ok = m.handleToolBatch(ctx, req, emit, b)
		} else {
			ok = m.startNewExecution(ctx, req, emit, job{messages: b.Messages})
		}
		if !ok {
			return
		}
	}
}

// classify plans the request and claims every message it will act on, so a
// concurrent request carrying the same messages sees them as processed.
func (m *Manager) classify(ctx context.Context, ref session.Ref, msgs []events.Message) Plan {
	unlock := m.classifying.Lock(ref.AppName + ":" + ref.ID)
	defer unlock()

	processed := m.sessions.ProcessedMessageIDs(ref.AppName, ref.ID)
	plan := Classify(msgs, processed, m.pending(ctx, ref))
	if claimed := plan.Claimed(); len(claimed) > 0 {
		m.sessions.MarkMessagesProcessed(ref.AppName, ref.ID, claimed...)
	}
	return plan
}

// pending returns the thread's pending client tool calls, if its session
// can be resolved.
func (m *Manager) pending(ctx context.Context, ref session.Ref) Pending {
	resolved, ok := m.lookup.resolve(m.sessions, ref.AppName, ref.ID)
	if !ok {
		return Pending{}
	}
	ids, err := m.sessions.PendingToolCalls(ctx, resolved)
	if err != nil {
		m.logger.Error("read pending tool calls", "thread_id", ref.ID, "error", err)
		return Pending{}
	}
	return Pending{IDs: ids, Known: true}
}

func (m *Manager) handleToolBatch(ctx context.Context, req *request, emit emitFunc, b Batch) bool {
	results := FunctionResponses(b.ToolResults, req.input.Messages)
	if len(results) == 0 {
		req.logger.Error("tool result submission without tool results")
		m.emitRunError(emit, req, bridge.NewRunError(bridge.CodeNoToolResults, "No tool results found in submission", bridge.ErrNoToolResults))
		return false
	}

	if err := m.resolvePending(ctx, req, results); err != nil {
		req.logger.Error("process tool results", "error", err)
		m.emitRunError(emit, req, bridge.NewRunError(bridge.CodeToolResultProcessing,
			"Failed to process tool results: "+err.Error(), err))
		return false
	}

	req.logger.Info("starting execution for tool results", "results", len(results))
	return m.startNewExecution(ctx, req, emit, job{
		toolMessages: b.ToolResults,
		toolResults:  results,
		messages:     b.Messages,
	})
}

// resolvePending drops the answered calls from the session's pending list.
func (m *Manager) resolvePending(ctx context.Context, req *request, results []runtime.FunctionResponse) error {
	ref, ok := m.lookup.resolve(m.sessions, req.ref.AppName, req.ref.ID)
	for _, r := range results {
		if !ok {
			req.logger.Warn("no session for tool result", "tool_call_id", r.ID)
			continue
		}
		removed, err := m.sessions.RemovePendingToolCall(ctx, ref, r.ID)
		if err != nil {
			return err
		}
		if !removed {
			req.logger.Warn("tool result does not match a pending call", "tool_call_id", r.ID)
		}
	}
	return nil
}

func (m *Manager) emitRunError(emit emitFunc, req *request, err error) bool {
	code := bridge.RunErrorCodeOf(err, bridge.CodeExecution)
	m.cfg.metrics.RunError(string(code))
	return emit(req.mapper.RunError(err, code))
}

// startNewExecution runs one execution and streams it. It reports whether
// the stream finished normally.
func (m *Manager) startNewExecution(ctx context.Context, req *request, emit emitFunc, j job) bool {
	ctx, span := startSpan(ctx, spanRun, req.ref.ID, req.input.RunID,
		attribute.String(attrAppName, req.ref.AppName),
		attribute.Bool(attrToolBatch, len(j.toolResults) > 0),
	)
	started := m.cfg.now()
	outcome := "finished"
	var runErr error
	defer func() {
		endSpan(span, outcome, runErr)
		m.cfg.metrics.ObserveExecution(outcome, m.cfg.now().Sub(started))
	}()

	if !emit(req.mapper.RunStarted()) {
		outcome = "disconnected"
		return false
	}

	exec, err := m.admit(ctx, req, j)
	if err != nil {
		outcome, runErr = "rejected", err
		req.logger.Error("start execution", "error", err)
		m.emitRunError(emit, req, err)
		return false
	}
	defer m.release(context.WithoutCancel(ctx), req, exec)

	res := m.stream(ctx, req, exec, emit)

	if len(res.pending) > 0 && !res.disconnected {
		exec.setPending(res.pending)
		if err := m.sessions.AddPendingToolCalls(context.WithoutCancel(ctx), req.ref, res.pending...); err != nil {
			req.logger.Error("record pending tool calls", "error", err)
		} else {
			req.logger.Info("awaiting client tool results", "tool_call_ids", res.pending)
		}
	}

	switch {
	case res.disconnected:
		outcome = "disconnected"
		return false
	case res.errored:
		outcome = "error"
		runErr = errors.New("run ended with RUN_ERROR")
		return false
	}
	if !emit(req.mapper.RunFinished()) {
		outcome = "disconnected"
		return false
	}
	return true
}

// admit registers a new execution for the thread and starts its driver.
// It waits for a running execution of the same thread to finish first.
func (m *Manager) admit(ctx context.Context, req *request, j job) (*Execution, error) {
	thread := req.ref.ID
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, bridge.NewRunError(bridge.CodeExecution, "execution manager is closed", nil)
		}

		existing := m.executions[thread]
		if existing != nil && !existing.IsComplete() && !existing.driverDone() {
			m.mu.Unlock()
			req.logger.Debug("waiting for existing execution to complete")
			select {
			case <-existing.Done():
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if existing == nil && len(m.executions) >= m.cfg.maxConcurrent {
			m.sweepStaleLocked()
			if len(m.executions) >= m.cfg.maxConcurrent {
				m.mu.Unlock()
				return nil, bridge.NewRunError(bridge.CodeExecution,
					fmt.Sprintf("Maximum concurrent executions (%d) reached", m.cfg.maxConcurrent),
					bridge.ErrCapacityExceeded)
			}
		}

		if existing != nil {
			m.cfg.metrics.ExecutionRemoved()
		}
		exec := m.spawn(ctx, req, j)
		m.executions[thread] = exec
		m.cfg.metrics.ExecutionStarted()
		m.mu.Unlock()
		return exec, nil
	}
}

// sweepStaleLocked cancels and forgets executions older than the execution
// timeout. m.mu must be held.
func (m *Manager) sweepStaleLocked() {
	now := m.cfg.now()
	for thread, e := range m.executions {
		if !e.IsStale(now, m.cfg.executionTimeout) {
			continue
		}
		e.Cancel()
		delete(m.executions, thread)
		m.cfg.metrics.ExecutionRemoved()
		m.logger.Info("cleaned up stale execution", "thread_id", thread)
	}
}

// release marks exec complete and forgets it unless the thread awaits
// client tool results.
func (m *Manager) release(ctx context.Context, req *request, exec *Execution) {
	exec.markComplete()
	awaiting, err := m.sessions.HasPendingToolCalls(ctx, req.ref)
	if err != nil {
		req.logger.Error("check pending tool calls", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.executions[req.ref.ID] != exec {
		return
	}
	if awaiting {
		req.logger.Info("preserving execution with pending tool calls")
		return
	}
	delete(m.executions, req.ref.ID)
	m.cfg.metrics.ExecutionRemoved()
	req.logger.Debug("cleaned up execution")
}

type streamResult struct {
	pending      []string
	errored      bool
	disconnected bool
}

// stream forwards exec's events until its channel closes, a RUN_ERROR
// passes, the execution times out or the client goes away. Tool calls
// that end without a result are reported as pending.
func (m *Manager) stream(ctx context.Context, req *request, exec *Execution, emit emitFunc) streamResult {
	var res streamResult
	var ended []string

	forward := func(ev events.Event) bool {
		switch ev.Type() {
		case events.EventTypeToolCallEnd:
			if id := agui.ToolCallIDOf(ev); id != "" {
				ended = append(ended, id)
			}
		case events.EventTypeToolCallResult:
			id := agui.ToolCallIDOf(ev)
			ended = slices.DeleteFunc(ended, func(s string) bool { return s == id })
		case events.EventTypeRunError:
			res.errored = true
		}
		if !emit(ev) {
			res.disconnected = true
			exec.Cancel()
			return false
		}
		if res.errored {
			exec.Cancel()
			return false
		}
		return true
	}

	ticker := time.NewTicker(m.cfg.pollInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case ev, ok := <-exec.events:
			if !ok {
				exec.markComplete()
				break loop
			}
			if !forward(ev) {
				break loop
			}

		case <-ticker.C:
			if exec.IsStale(m.cfg.now(), m.cfg.executionTimeout) {
				req.logger.Error("execution timed out", "timeout", m.cfg.executionTimeout)
				exec.Cancel()
				res.errored = true
				if !m.emitRunError(emit, req, bridge.NewRunError(bridge.CodeExecutionTimeout, "Execution timed out", nil)) {
					res.disconnected = true
				}
				break loop
			}
			if exec.driverDone() {
				// The driver has exited; take whatever it left buffered.
				for {
					select {
					case ev, ok := <-exec.events:
						if !ok || !forward(ev) {
							exec.markComplete()
							break loop
						}
					default:
						exec.markComplete()
						break loop
					}
				}
			}

		case <-ctx.Done():
			res.disconnected = true
			exec.Cancel()
			break loop
		}
	}

	res.pending = ended
	return res
}

// Close cancels every execution and waits for their drivers to exit or ctx
// to expire, then stops the session sweeper. The Manager rejects new runs
// afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	execs := make([]*Execution, 0, len(m.executions))
	for _, e := range m.executions {
		execs = append(execs, e)
	}
	clear(m.executions)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range execs {
		g.Go(func() error {
			e.Cancel()
			m.cfg.metrics.ExecutionRemoved()
			select {
			case <-e.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("execution: close thread %s: %w", e.ThreadID, gctx.Err())
			}
		})
	}
	err := g.Wait()

	m.lookup.purge()
	m.sessions.Stop()
	m.logger.Info("execution manager closed", "cancelled", len(execs))
	return err
}
