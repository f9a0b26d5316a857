package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/agui"
	"github.com/spetersoncode/aguibridge/runtime"
	"github.com/spetersoncode/aguibridge/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// script is a fake runtime. Each invocation is recorded and answered by fn.
type script struct {
	mu    sync.Mutex
	calls []runtime.Invocation
	fn    scriptFunc
}

type scriptFunc func(ctx context.Context, inv runtime.Invocation, yield func(*runtime.Event, error) bool)

func (s *script) Run(ctx context.Context, inv runtime.Invocation) iter.Seq2[*runtime.Event, error] {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	fn := s.fn
	s.mu.Unlock()
	return func(yield func(*runtime.Event, error) bool) {
		fn(ctx, inv, yield)
	}
}

func (s *script) set(fn scriptFunc) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func (s *script) invocations() []runtime.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]runtime.Invocation(nil), s.calls...)
}

func reply(text string) scriptFunc {
	return func(_ context.Context, _ runtime.Invocation, yield func(*runtime.Event, error) bool) {
		yield(&runtime.Event{ID: "e-reply", Author: "assistant", TurnComplete: true, Content: runtime.NewTextContent("model", text)}, nil)
	}
}

func askClient(callID string) scriptFunc {
	return func(_ context.Context, _ runtime.Invocation, yield func(*runtime.Event, error) bool) {
		yield(&runtime.Event{
			ID:     "e-call",
			Author: "assistant",
			Content: &runtime.Content{Role: "model", Parts: []runtime.Part{{
				FunctionCall: &runtime.FunctionCall{ID: callID, Name: "confirm", Args: map[string]any{"action": "delete"}},
			}}},
			LongRunningToolIDs: []string{callID},
		}, nil)
	}
}

func blockUntilCancelled(ctx context.Context, _ runtime.Invocation, yield func(*runtime.Event, error) bool) {
	<-ctx.Done()
	yield(nil, ctx.Err())
}

type fixture struct {
	mgr      *Manager
	runner   *script
	sessions *session.Manager
	clock    *clock
}

func newFixture(t *testing.T, fn scriptFunc, opts ...Option) *fixture {
	t.Helper()
	c := newClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(session.NewMemoryStore(session.WithStoreClock(c.Now)),
		session.WithClock(c.Now),
		session.WithAutoCleanup(false),
		session.WithLogger(logger),
	)
	runner := &script{fn: fn}
	agent := &runtime.Agent{Name: "assistant", Instruction: runtime.StaticInstruction("You help.")}
	base := []Option{
		WithClock(c.Now),
		WithLogger(logger),
		WithPollInterval(5 * time.Millisecond),
	}
	mgr, err := NewManager(runner, agent, sessions, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	return &fixture{mgr: mgr, runner: runner, sessions: sessions, clock: c}
}

func input(t *testing.T, thread, run, msgs string) *agui.RunAgentInput {
	t.Helper()
	in, err := agui.Decode([]byte(`{"threadId":"` + thread + `","runId":"` + run + `","messages":` + msgs + `}`))
	require.NoError(t, err)
	return in
}

func collect(t *testing.T, ch <-chan events.Event) []events.Event {
	t.Helper()
	var out []events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return out
		}
	}
}

func types(evs []events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type()
	}
	return out
}

func fields(t *testing.T, ev events.Event) map[string]any {
	t.Helper()
	data, err := ev.ToJSON()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

const userHi = `[{"id":"u1","role":"user","content":"hi"}]`

func TestManager_TextReply(t *testing.T) {
	f := newFixture(t, reply("Hello!"))

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi)))

	assert.Equal(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeRunFinished,
	}, types(got))
	assert.Equal(t, "Hello!", fields(t, got[2])["delta"])
	assert.Equal(t, "t1", fields(t, got[0])["threadId"])

	invs := f.runner.invocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "r1", invs[0].ID)
	assert.Equal(t, "assistant", invs[0].AppName)
	assert.Equal(t, "thread_user_t1", invs[0].UserID)
	assert.Equal(t, "hi", invs[0].NewMessage.Parts[0].Text)
	assert.Equal(t, DefaultToolTimeout, invs[0].ToolTimeout)

	assert.True(t, f.sessions.ProcessedMessageIDs("assistant", "t1")["u1"])
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 0 })
}

func TestManager_ReplayRunsNothing(t *testing.T) {
	f := newFixture(t, reply("Hello!"))
	collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi)))

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r2", userHi)))
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunFinished}, types(got))
	assert.Len(t, f.runner.invocations(), 1)
}

func TestManager_StateSnapshot(t *testing.T) {
	f := newFixture(t, reply("ok"))
	in := input(t, "t1", "r1", userHi)
	in.State = map[string]any{"theme": "dark"}

	got := collect(t, f.mgr.Run(context.Background(), in))
	require.GreaterOrEqual(t, len(got), 2)
	snap := got[len(got)-2]
	assert.Equal(t, events.EventTypeStateSnapshot, snap.Type())
	assert.Equal(t, map[string]any{"theme": "dark"}, fields(t, snap)["snapshot"])
	assert.Equal(t, events.EventTypeRunFinished, got[len(got)-1].Type())

	invs := f.runner.invocations()
	require.Len(t, invs, 1)
	assert.Equal(t, "dark", invs[0].State["theme"])
}

func TestManager_SystemMessageExtendsInstruction(t *testing.T) {
	f := newFixture(t, reply("ok"))
	msgs := `[{"id":"s1","role":"system","content":"Answer in French."},{"id":"u1","role":"user","content":"hi"}]`

	collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", msgs)))

	invs := f.runner.invocations()
	require.Len(t, invs, 1)
	ins, err := invs[0].Agent.Instruction.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You help.\n\nAnswer in French.", ins)

	base, err := f.mgr.Agent().Instruction.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You help.", base)
}

func TestManager_ClientToolRoundTrip(t *testing.T) {
	f := newFixture(t, askClient("c1"))
	in := input(t, "t1", "r1", userHi)
	in.Tools = []bridge.ToolDeclaration{{Name: "confirm", Parameters: json.RawMessage(`{"type":"object"}`)}}

	got := collect(t, f.mgr.Run(context.Background(), in))
	assert.Equal(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeToolCallStart,
		events.EventTypeToolCallArgs,
		events.EventTypeToolCallEnd,
		events.EventTypeRunFinished,
	}, types(got))
	assert.Equal(t, "c1", agui.ToolCallIDOf(got[1]))

	invs := f.runner.invocations()
	require.Len(t, invs, 1)
	_, ok := invs[0].Agent.Tool("confirm")
	assert.True(t, ok, "client tool is exposed to the runtime")

	ref := session.Ref{AppName: "assistant", UserID: "thread_user_t1", ID: "t1"}
	pending, err := f.sessions.PendingToolCalls(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, pending)
	assert.Equal(t, map[string]string{"t1": StatusCompleteAwaitingTools}, f.mgr.ActiveExecutions())

	// The client answers.
	f.runner.set(reply("Deleted."))
	msgs := `[
		{"id":"u1","role":"user","content":"hi"},
		{"id":"a1","role":"assistant","toolCalls":[{"id":"c1","type":"function","function":{"name":"confirm","arguments":"{}"}}]},
		{"id":"t1m","role":"tool","toolCallId":"c1","content":"{\"approved\":true}"}
	]`
	got = collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r2", msgs)))
	assert.Equal(t, events.EventTypeRunStarted, got[0].Type())
	assert.Equal(t, events.EventTypeRunFinished, got[len(got)-1].Type())
	assert.Contains(t, types(got), events.EventTypeTextMessageContent)

	invs = f.runner.invocations()
	require.Len(t, invs, 2)
	parts := invs[1].NewMessage.Parts
	require.Len(t, parts, 1)
	require.NotNil(t, parts[0].FunctionResponse)
	assert.Equal(t, "c1", parts[0].FunctionResponse.ID)
	assert.Equal(t, "confirm", parts[0].FunctionResponse.Name)
	assert.Equal(t, map[string]any{"approved": true}, parts[0].FunctionResponse.Response)

	pending, err = f.sessions.PendingToolCalls(context.Background(), ref)
	require.NoError(t, err)
	assert.Empty(t, pending)
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 0 })
}

func TestManager_ToolResultWithUserMessage(t *testing.T) {
	f := newFixture(t, askClient("c1"))
	collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi)))

	f.runner.set(reply("ok"))
	msgs := `[
		{"id":"u1","role":"user","content":"hi"},
		{"id":"t1m","role":"tool","toolCallId":"c1","content":"yes"},
		{"id":"u2","role":"user","content":"and then?"}
	]`
	collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r2", msgs)))

	invs := f.runner.invocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "and then?", invs[1].NewMessage.Parts[0].Text)

	// The tool result was recorded in history ahead of the user message.
	var responded bool
	for _, ev := range invs[1].History {
		for _, fr := range ev.FunctionResponses() {
			if fr.ID == "c1" {
				responded = true
				assert.Equal(t, "JSON_DECODE_ERROR", fr.Response["error_type"])
			}
		}
	}
	assert.True(t, responded)
	assert.True(t, f.sessions.ProcessedMessageIDs("assistant", "t1")["u2"])
}

func TestManager_ProxyAnnouncementNotDuplicated(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, inv runtime.Invocation, yield func(*runtime.Event, error) bool) {
		tool, ok := inv.Agent.Tool("confirm")
		if !ok {
			yield(nil, assert.AnError)
			return
		}
		if _, err := tool.Call(ctx, runtime.ToolContext{FunctionCallID: "c1"}, map[string]any{"action": "x"}); err != nil {
			yield(nil, err)
			return
		}
		askClient("c1")(ctx, inv, yield)
	})
	in := input(t, "t1", "r1", userHi)
	in.Tools = []bridge.ToolDeclaration{{Name: "confirm"}}

	got := collect(t, f.mgr.Run(context.Background(), in))
	var starts int
	for _, ev := range got {
		if ev.Type() == events.EventTypeToolCallStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, events.EventTypeRunFinished, got[len(got)-1].Type())
}

func TestManager_ProxyClosesStreamingText(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, inv runtime.Invocation, yield func(*runtime.Event, error) bool) {
		partial := &runtime.Event{ID: "e-text", Author: "assistant", Partial: true, Content: runtime.NewTextContent("model", "Let me ask")}
		if !yield(partial, nil) {
			return
		}
		tool, ok := inv.Agent.Tool("confirm")
		if !ok {
			yield(nil, assert.AnError)
			return
		}
		if _, err := tool.Call(ctx, runtime.ToolContext{FunctionCallID: "c1"}, map[string]any{"action": "x"}); err != nil {
			yield(nil, err)
			return
		}
		askClient("c1")(ctx, inv, yield)
	})
	in := input(t, "t1", "r1", userHi)
	in.Tools = []bridge.ToolDeclaration{{Name: "confirm"}}

	got := collect(t, f.mgr.Run(context.Background(), in))
	assert.Equal(t, []events.EventType{
		events.EventTypeRunStarted,
		events.EventTypeTextMessageStart,
		events.EventTypeTextMessageContent,
		events.EventTypeTextMessageEnd,
		events.EventTypeToolCallStart,
		events.EventTypeToolCallArgs,
		events.EventTypeToolCallEnd,
		events.EventTypeRunFinished,
	}, types(got))
	assert.Equal(t, "Let me ask", fields(t, got[2])["delta"])
	assert.Equal(t, "c1", agui.ToolCallIDOf(got[4]))
}

func TestManager_StaleToolResultStartsNothing(t *testing.T) {
	f := newFixture(t, askClient("c1"))
	collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi)))

	ref := session.Ref{AppName: "assistant", UserID: "thread_user_t1", ID: "t1"}
	pending, err := f.sessions.PendingToolCalls(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, pending)

	msgs := `[
		{"id":"u1","role":"user","content":"hi"},
		{"id":"t9","role":"tool","toolCallId":"zz","content":"late"}
	]`
	got := collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r2", msgs)))
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunFinished}, types(got))
	assert.Len(t, f.runner.invocations(), 1)
	assert.True(t, f.sessions.ProcessedMessageIDs("assistant", "t1")["t9"])

	pending, err = f.sessions.PendingToolCalls(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, pending)
}

func TestManager_ConcurrentIdenticalRuns(t *testing.T) {
	f := newFixture(t, reply("once"), WithMaxConcurrent(100))

	for i := range 20 {
		thread := fmt.Sprintf("t%d", i)
		first := f.mgr.Run(context.Background(), input(t, thread, "ra", userHi))
		second := f.mgr.Run(context.Background(), input(t, thread, "rb", userHi))
		a, b := collect(t, first), collect(t, second)
		assert.Equal(t, events.EventTypeRunFinished, a[len(a)-1].Type())
		assert.Equal(t, events.EventTypeRunFinished, b[len(b)-1].Type())
	}

	perThread := make(map[string]int)
	for _, inv := range f.runner.invocations() {
		perThread[inv.SessionID]++
	}
	assert.Len(t, perThread, 20)
	for thread, n := range perThread {
		assert.Equal(t, 1, n, "thread %s processed u1 more than once", thread)
	}
}

func TestManager_RuntimeError(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ runtime.Invocation, yield func(*runtime.Event, error) bool) {
		yield(nil, assert.AnError)
	})

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi)))
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunError}, types(got))
	errFields := fields(t, got[1])
	assert.Equal(t, string(bridge.CodeBackgroundExecution), errFields["code"])
	assert.Equal(t, assert.AnError.Error(), errFields["message"])
}

func TestManager_MissingThreadID(t *testing.T) {
	f := newFixture(t, reply("unused"))

	got := collect(t, f.mgr.Run(context.Background(), input(t, "", "r1", userHi)))
	require.Len(t, got, 1)
	assert.Equal(t, events.EventTypeRunError, got[0].Type())
	assert.Equal(t, string(bridge.CodeExecution), fields(t, got[0])["code"])
	assert.Empty(t, f.runner.invocations())
}

func TestManager_HandleToolBatchWithoutResults(t *testing.T) {
	f := newFixture(t, reply("unused"))
	in := input(t, "t1", "r1", userHi)
	require.NoError(t, in.Validate())
	req := &request{
		input:  in,
		ref:    session.Ref{AppName: "assistant", UserID: "u", ID: "t1"},
		mapper: agui.NewMapper("t1", "r1"),
		logger: f.mgr.logger,
	}

	var got []events.Event
	emit := func(ev events.Event) bool {
		got = append(got, ev)
		return true
	}
	ok := f.mgr.handleToolBatch(context.Background(), req, emit, Batch{ToolResults: in.Messages})
	assert.False(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, string(bridge.CodeNoToolResults), fields(t, got[0])["code"])
	assert.Empty(t, f.runner.invocations())
}

func TestManager_Capacity(t *testing.T) {
	f := newFixture(t, blockUntilCancelled, WithMaxConcurrent(1), WithExecutionTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := f.mgr.Run(ctx, input(t, "t1", "r1", userHi))
	ev := <-first
	require.Equal(t, events.EventTypeRunStarted, ev.Type())
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 1 })

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t2", "r2", userHi)))
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunError}, types(got))
	errFields := fields(t, got[1])
	assert.Equal(t, string(bridge.CodeExecution), errFields["code"])
	assert.Equal(t, "Maximum concurrent executions (1) reached", errFields["message"])

	cancel()
	collect(t, first)
}

func TestManager_StaleExecutionReclaimed(t *testing.T) {
	f := newFixture(t, blockUntilCancelled,
		WithMaxConcurrent(1),
		WithExecutionTimeout(time.Minute),
		WithPollInterval(time.Hour),
	)

	first := f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi))
	require.Equal(t, events.EventTypeRunStarted, (<-first).Type())
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 1 })

	f.clock.Advance(2 * time.Minute)
	f.runner.set(reply("fresh"))

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t2", "r2", userHi)))
	assert.Equal(t, events.EventTypeRunFinished, got[len(got)-1].Type())
	collect(t, first)
}

func TestManager_ExecutionTimeout(t *testing.T) {
	f := newFixture(t, blockUntilCancelled, WithExecutionTimeout(time.Minute))

	out := f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi))
	require.Equal(t, events.EventTypeRunStarted, (<-out).Type())
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 1 })

	f.clock.Advance(2 * time.Minute)
	got := collect(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, events.EventTypeRunError, got[0].Type())
	errFields := fields(t, got[0])
	assert.Equal(t, string(bridge.CodeExecutionTimeout), errFields["code"])
	assert.Equal(t, "Execution timed out", errFields["message"])
}

func TestManager_ClientDisconnectCancelsExecution(t *testing.T) {
	var cancelled atomic.Bool
	f := newFixture(t, func(ctx context.Context, inv runtime.Invocation, yield func(*runtime.Event, error) bool) {
		blockUntilCancelled(ctx, inv, yield)
		cancelled.Store(true)
	})

	ctx, cancel := context.WithCancel(context.Background())
	out := f.mgr.Run(ctx, input(t, "t1", "r1", userHi))
	require.Equal(t, events.EventTypeRunStarted, (<-out).Type())
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 1 })

	cancel()
	collect(t, out)
	waitFor(t, cancelled.Load)
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 0 })
}

func TestManager_SameThreadWaits(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(_ context.Context, inv runtime.Invocation, yield func(*runtime.Event, error) bool) {
		if inv.ID == "r1" {
			<-release
		}
		reply("done "+inv.ID)(context.Background(), inv, yield)
	})

	first := f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi))
	require.Equal(t, events.EventTypeRunStarted, (<-first).Type())
	waitFor(t, func() bool { return len(f.runner.invocations()) == 1 })

	second := f.mgr.Run(context.Background(), input(t, "t1", "r2",
		`[{"id":"u1","role":"user","content":"hi"},{"id":"u2","role":"user","content":"more"}]`))
	require.Equal(t, events.EventTypeRunStarted, (<-second).Type())
	assert.Len(t, f.runner.invocations(), 1, "second run waits for the first")

	close(release)
	collect(t, first)
	got := collect(t, second)
	assert.Equal(t, events.EventTypeRunFinished, got[len(got)-1].Type())
	assert.Len(t, f.runner.invocations(), 2)
}

func TestManager_Close(t *testing.T) {
	f := newFixture(t, blockUntilCancelled)

	out := f.mgr.Run(context.Background(), input(t, "t1", "r1", userHi))
	require.Equal(t, events.EventTypeRunStarted, (<-out).Type())
	waitFor(t, func() bool { return len(f.mgr.ActiveExecutions()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.mgr.Close(ctx))
	collect(t, out)
	assert.Empty(t, f.mgr.ActiveExecutions())

	got := collect(t, f.mgr.Run(context.Background(), input(t, "t2", "r2", userHi)))
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunError}, types(got))
}

func TestManager_Identity(t *testing.T) {
	f := newFixture(t, reply("ok"),
		WithAppNameExtractor(func(in *agui.RunAgentInput) string { return "app-" + in.ThreadID }),
		WithUserID("alice"),
	)
	in := input(t, "t1", "r1", userHi)
	assert.Equal(t, "app-t1", f.mgr.AppName(in))
	assert.Equal(t, "alice", f.mgr.UserID(in))

	_, err := NewManager(f.runner, f.mgr.Agent(), f.sessions, WithUserID("a"), WithUserIDExtractor(func(*agui.RunAgentInput) string { return "b" }))
	assert.ErrorIs(t, err, errUserIDConflict)

	_, err = NewManager(nil, f.mgr.Agent(), f.sessions)
	assert.Error(t, err)
}
