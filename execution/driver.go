package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/runtime"
	"github.com/spetersoncode/aguibridge/toolproxy"
)

// spawn creates the execution and starts its driver. The driver outlives
// the request context; it is stopped through Execution.Cancel.
func (m *Manager) spawn(ctx context.Context, req *request, j job) *Execution {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	exec := newExecution(req.ref.ID, req.input.RunID, m.cfg.now(), m.cfg.queueSize, cancel)
	d := &driver{
		m:          m,
		req:        req,
		exec:       exec,
		ctx:        dctx,
		translator: agui.NewTranslator(agui.WithLogger(req.logger)),
		announced:  make(map[string]bool),
		suppressed: make(map[string]bool),
	}
	go d.run(j)
	return exec
}

// driver feeds one execution's channel from the runtime.
type driver struct {
	m          *Manager
	req        *request
	exec       *Execution
	ctx        context.Context
	translator *agui.Translator

	// order serializes use of the translator together with the pushes of
	// what it produced, so proxy announcements cannot interleave with
	// runtime output.
	order sync.Mutex

	// mu guards the fields below. Client tool proxies may emit from
	// goroutines owned by the runtime.
	mu         sync.RWMutex
	closed     bool
	announced  map[string]bool // tool call ids already sent as TOOL_CALL_START
	suppressed map[string]bool // proxy announcements dropped as duplicates
}

func (d *driver) run(j job) {
	ctx, span := startSpan(d.ctx, spanDrive, d.req.ref.ID, d.req.input.RunID)
	d.ctx = ctx
	outcome := "completed"

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			d.req.logger.Error("background execution panicked", "panic", r, "stack", string(debug.Stack()))
		}
		switch {
		case err != nil && d.ctx.Err() != nil:
			outcome = "cancelled"
			d.req.logger.Debug("background execution cancelled", "error", err)
		case err != nil:
			outcome = "error"
			d.req.logger.Error("background execution failed", "error", err)
			d.m.cfg.metrics.RunError(string(bridge.CodeBackgroundExecution))
			_ = d.push(d.req.mapper.RunErrorCode(bridge.CodeBackgroundExecution, err.Error()))
		}
		d.close()
		endSpan(span, outcome, err)
	}()

	var stopped bool
	stopped, err = d.drive(j)
	if stopped {
		outcome = "awaiting_client"
	}
}

// close ends the stream: the channel close is the sentinel, then Done.
func (d *driver) close() {
	d.mu.Lock()
	d.closed = true
	close(d.exec.events)
	d.mu.Unlock()
	close(d.exec.done)
}

func (d *driver) push(ev events.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("execution stream closed")
	}
	if err := d.ctx.Err(); err != nil {
		return err
	}
	select {
	case d.exec.events <- ev:
		return nil
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *driver) pushAll(evs []events.Event) error {
	for _, ev := range evs {
		if err := d.push(ev); err != nil {
			return err
		}
	}
	return nil
}

// Emit receives announcements from client tool proxies. A call already
// announced from the runtime's own event is dropped. An open text message
// is closed before the call starts.
func (d *driver) Emit(_ context.Context, ev events.Event) error {
	id := agui.ToolCallIDOf(ev)
	d.mu.Lock()
	if ev.Type() == events.EventTypeToolCallStart {
		if d.announced[id] {
			d.suppressed[id] = true
		}
		d.announced[id] = true
	}
	drop := d.suppressed[id]
	if ev.Type() == events.EventTypeToolCallEnd {
		delete(d.suppressed, id)
	}
	d.mu.Unlock()

	if drop {
		return nil
	}

	d.order.Lock()
	defer d.order.Unlock()
	if ev.Type() == events.EventTypeToolCallStart {
		if err := d.pushAll(d.translator.ForceCloseStreamingMessage()); err != nil {
			return err
		}
	}
	return d.push(ev)
}

func (d *driver) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.announced[id] {
		return false
	}
	d.announced[id] = true
	return true
}

// agent builds the agent for this request: a leading system message is
// appended to the instruction and client tools are added as proxies.
func (d *driver) agent() *runtime.Agent {
	agent := d.m.agent
	in := d.req.input

	if len(in.Messages) > 0 && in.Messages[0].Role == agui.RoleSystem {
		if text := agui.Content(in.Messages[0]); text != "" {
			agent = agent.WithInstruction(runtime.AppendInstruction(agent.Instruction, text))
		}
	}

	if len(in.Tools) > 0 {
		reg := toolproxy.NewRegistry(in.Tools, d,
			toolproxy.WithReservedNames(agent.ToolNames()...),
			toolproxy.WithLogger(d.req.logger),
		)
		if reg.Len() > 0 {
			agent = agent.WithTools(reg.Tools()...)
			d.req.logger.Debug("added client tools", "tools", reg.Names())
		}
	}
	return agent
}

// drive runs the execution. It reports stopped when the runtime was left
// waiting on a client tool call.
func (d *driver) drive(j job) (stopped bool, err error) {
	ctx, req, sessions := d.ctx, d.req, d.m.sessions
	in := req.input

	agent := d.agent()

	if _, err := sessions.GetOrCreate(ctx, req.ref, in.State); err != nil {
		return false, err
	}
	d.m.lookup.put(req.ref)

	// The client's view of shared state wins over the session's.
	if len(in.State) > 0 {
		if _, err := sessions.UpdateState(ctx, req.ref, in.State); err != nil {
			return false, err
		}
	}

	switch {
	case len(j.toolMessages) > 0:
		sessions.MarkMessagesProcessed(req.ref.AppName, req.ref.ID, messageIDs(j.toolMessages)...)
	case len(j.messages) > 0:
		sessions.MarkMessagesProcessed(req.ref.AppName, req.ref.ID, messageIDs(j.messages)...)
	}

	newMessage, err := d.newMessage(j)
	if err != nil {
		return false, err
	}
	if newMessage == nil {
		req.logger.Debug("no new input for the runtime")
		return false, d.finish()
	}

	snap, ok, err := sessions.Get(ctx, req.ref)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("session %s: %w", req.ref.Key(), bridge.ErrSessionNotFound)
	}
	inv := runtime.Invocation{
		ID:          in.RunID,
		Agent:       agent,
		AppName:     req.ref.AppName,
		UserID:      req.ref.UserID,
		SessionID:   req.ref.ID,
		State:       snap.State,
		History:     snap.Events,
		NewMessage:  newMessage,
		ToolTimeout: d.m.cfg.toolTimeout,
	}
	if err := sessions.AppendEvent(ctx, req.ref, &runtime.Event{
		ID:           uuid.NewString(),
		InvocationID: in.RunID,
		Author:       runtime.AuthorUser,
		Content:      newMessage,
		Timestamp:    d.m.cfg.now(),
	}); err != nil {
		return false, err
	}

	for ev, err := range d.m.runner.Run(ctx, inv) {
		if err != nil {
			return false, err
		}
		if ev == nil {
			continue
		}
		if !ev.Partial && ev.Author != runtime.AuthorUser {
			if err := sessions.AppendEvent(ctx, req.ref, ev); err != nil {
				req.logger.Warn("record runtime event", "event_id", ev.ID, "error", err)
			}
		}

		if ev.HasLongRunningCall() {
			stop, err := d.longRunning(ev)
			if err != nil {
				return false, err
			}
			if stop {
				req.logger.Info("stopping for client tool call")
				return true, nil
			}
			continue
		}

		d.order.Lock()
		err := d.pushAll(d.translator.Translate(ev, req.ref.ID, in.RunID))
		d.order.Unlock()
		if err != nil {
			return false, err
		}
	}
	return false, d.finish()
}

// newMessage builds the runtime input. Tool results sent together with a
// user message are recorded in history as their own turn, and the user
// message becomes the input.
func (d *driver) newMessage(j job) (*runtime.Content, error) {
	user, hasUser := agui.LatestUserMessage(j.messages)
	switch {
	case len(j.toolResults) > 0 && hasUser:
		err := d.m.sessions.AppendEvent(d.ctx, d.req.ref, &runtime.Event{
			ID:           uuid.NewString(),
			InvocationID: d.req.input.RunID,
			Author:       runtime.AuthorUser,
			Content:      runtime.NewFunctionResponseContent(j.toolResults...),
			Timestamp:    d.m.cfg.now(),
		})
		if err != nil {
			return nil, err
		}
		d.m.sessions.MarkMessagesProcessed(d.req.ref.AppName, d.req.ref.ID, messageIDs(j.messages)...)
		return runtime.NewTextContent(runtime.AuthorUser, agui.Content(user)), nil
	case len(j.toolResults) > 0:
		return runtime.NewFunctionResponseContent(j.toolResults...), nil
	case hasUser:
		return runtime.NewTextContent(runtime.AuthorUser, agui.Content(user)), nil
	default:
		return nil, nil
	}
}

// longRunning announces the client tool call in ev. It reports stop once
// the call's TOOL_CALL_END is out.
func (d *driver) longRunning(ev *runtime.Event) (bool, error) {
	d.order.Lock()
	defer d.order.Unlock()

	if err := d.pushAll(d.translator.ForceCloseStreamingMessage()); err != nil {
		return false, err
	}

	// Only the first long-running call is announced.
	for _, fc := range ev.FunctionCalls() {
		if !ev.IsLongRunning(fc.ID) {
			continue
		}
		if !d.claim(fc.ID) {
			// A proxy already announced it.
			return true, nil
		}
		break
	}

	stop := false
	for _, out := range d.translator.TranslateLongRunningCalls(ev) {
		if err := d.push(out); err != nil {
			return false, err
		}
		if out.Type() == events.EventTypeToolCallEnd {
			stop = true
		}
	}
	return stop, nil
}

// finish closes any open text message and sends the final state.
func (d *driver) finish() error {
	d.order.Lock()
	err := d.pushAll(d.translator.ForceCloseStreamingMessage())
	d.order.Unlock()
	if err != nil {
		return err
	}
	state, ok, err := d.m.sessions.State(d.ctx, d.req.ref)
	if err != nil {
		return err
	}
	if ok && len(state) > 0 {
		return d.push(d.req.mapper.StateSnapshot(state))
	}
	return nil
}
