package agui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"

	"github.com/spetersoncode/aguibridge/runtime"
)

// CustomMetadataEvent is the CUSTOM event name used for runtime custom data.
const CustomMetadataEvent = "runtime_metadata"

// streamingMessage tracks the assistant text message currently open on the
// wire, plus the last text that was fully streamed so that a trailing final
// event repeating it can be dropped.
type streamingMessage struct {
	id   string
	text string

	lastText  *string
	lastRunID string
}

func (s *streamingMessage) open() bool { return s.id != "" }

// close ends the open message, remembering its text for duplicate detection.
func (s *streamingMessage) close(runID string) {
	if s.text != "" {
		last := s.text
		s.lastText = &last
		s.lastRunID = runID
	}
	s.id = ""
	s.text = ""
}

func (s *streamingMessage) isDuplicate(runID, text string) bool {
	return s.lastText != nil && s.lastRunID == runID && *s.lastText == text
}

func (s *streamingMessage) forgetLast() {
	s.lastText = nil
	s.lastRunID = ""
}

// Translator converts runtime events into AG-UI events.
//
// Create one Translator per execution. It is not safe for concurrent use.
type Translator struct {
	logger *slog.Logger

	msg         streamingMessage
	activeCalls map[string]struct{}
	// clientCalls holds ids of long-running calls; their results belong to
	// the client and are never echoed as TOOL_CALL_RESULT.
	clientCalls []string
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTranslator creates a Translator in the idle state.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		logger:      slog.Default(),
		activeCalls: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Streaming reports whether a text message is currently open.
func (t *Translator) Streaming() bool { return t.msg.open() }

// LongRunningToolIDs returns the ids of long-running calls emitted so far.
func (t *Translator) LongRunningToolIDs() []string { return slices.Clone(t.clientCalls) }

// Translate converts one runtime event into zero or more AG-UI events.
// Events authored by the user are skipped. A failure while translating is
// logged and yields no events for that runtime event.
func (t *Translator) Translate(ev *runtime.Event, threadID, runID string) (out []events.Event) {
	if ev == nil || ev.Author == runtime.AuthorUser {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("translate runtime event", "event_id", ev.ID, "thread_id", threadID, "panic", r)
			out = nil
		}
	}()

	out, err := t.translate(ev, runID)
	if err != nil {
		t.logger.Error("translate runtime event", "event_id", ev.ID, "thread_id", threadID, "error", err)
		return nil
	}
	return out
}

func (t *Translator) translate(ev *runtime.Event, runID string) ([]events.Event, error) {
	var out []events.Event

	if ev.Content != nil && len(ev.Content.Parts) > 0 {
		out = append(out, t.translateText(ev, runID)...)
	}

	var calls []runtime.FunctionCall
	for _, fc := range ev.FunctionCalls() {
		if !ev.IsLongRunning(fc.ID) {
			calls = append(calls, fc)
		}
	}
	if len(calls) > 0 {
		// TEXT_MESSAGE_END must precede TOOL_CALL_START.
		out = append(out, t.ForceCloseStreamingMessage()...)
		callEvents, err := t.translateCalls(calls)
		if err != nil {
			return nil, err
		}
		out = append(out, callEvents...)
	}

	for _, fr := range ev.FunctionResponses() {
		if slices.Contains(t.clientCalls, fr.ID) {
			t.logger.Debug("skip result for long-running tool", "tool_call_id", fr.ID)
			continue
		}
		out = append(out, events.NewToolCallResultEvent(uuid.NewString(), fr.ID, serializeResponse(fr.Response)))
	}

	if len(ev.Actions.StateDelta) > 0 {
		out = append(out, events.NewStateDeltaEvent(StateDeltaOps(ev.Actions.StateDelta)))
	}
	if ev.Actions.StateSnapshot != nil {
		out = append(out, events.NewStateSnapshotEvent(ev.Actions.StateSnapshot))
	}
	if len(ev.CustomData) > 0 {
		out = append(out, events.NewCustomEvent(CustomMetadataEvent, events.WithValue(ev.CustomData)))
	}
	return out, nil
}

// translateText handles the text parts of an event.
func (t *Translator) translateText(ev *runtime.Event, runID string) []events.Event {
	final := ev.IsFinalResponse()
	if !ev.HasText() && !final {
		return nil
	}
	text := ev.Text()

	if final {
		return t.finalText(ev, runID, text)
	}

	var out []events.Event
	if !t.msg.open() {
		t.msg.id = uuid.NewString()
		t.msg.text = ""
		out = append(out, events.NewTextMessageStartEvent(t.msg.id, events.WithRole(RoleAssistant)))
	}
	if text != "" {
		t.msg.text += text
		out = append(out, events.NewTextMessageContentEvent(t.msg.id, text))
	}
	if shouldSendEnd(ev, t.msg.open()) {
		out = append(out, events.NewTextMessageEndEvent(t.msg.id))
		t.msg.close(runID)
	}
	return out
}

// finalText handles an event carrying the complete text of a turn.
func (t *Translator) finalText(ev *runtime.Event, runID, text string) []events.Event {
	if t.msg.open() {
		id := t.msg.id
		t.msg.close(runID)
		return []events.Event{events.NewTextMessageEndEvent(id)}
	}

	defer func() {
		t.msg.text = ""
		t.msg.forgetLast()
	}()

	if text == "" {
		return nil
	}
	if t.msg.isDuplicate(runID, text) {
		t.logger.Debug("skip final response duplicating streamed text", "event_id", ev.ID)
		return nil
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []events.Event{
		events.NewTextMessageStartEvent(id, events.WithRole(RoleAssistant)),
		events.NewTextMessageContentEvent(id, text),
		events.NewTextMessageEndEvent(id),
	}
}

// shouldSendEnd reports whether a non-final text event closes the message.
func shouldSendEnd(ev *runtime.Event, streaming bool) bool {
	return (ev.TurnComplete && !ev.Partial) ||
		(ev.IsFinalResponse() && !ev.Partial) ||
		(ev.FinishReason != "" && streaming)
}

func (t *Translator) translateCalls(calls []runtime.FunctionCall) ([]events.Event, error) {
	var out []events.Event
	for _, fc := range calls {
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := t.activeCalls[id]; dup {
			t.logger.Warn("duplicate tool call id", "tool_call_id", id, "tool", fc.Name)
		}
		t.activeCalls[id] = struct{}{}

		triple, err := toolCallEvents(id, fc)
		if err != nil {
			return nil, err
		}
		out = append(out, triple...)
		delete(t.activeCalls, id)
	}
	return out, nil
}

// TranslateLongRunningCalls emits START, ARGS and END for the first
// function call in ev flagged long-running, and records its id as
// client-owned.
func (t *Translator) TranslateLongRunningCalls(ev *runtime.Event) []events.Event {
	for _, fc := range ev.FunctionCalls() {
		if !ev.IsLongRunning(fc.ID) {
			continue
		}
		t.clientCalls = append(t.clientCalls, fc.ID)
		out, err := toolCallEvents(fc.ID, fc)
		if err != nil {
			t.logger.Error("translate long-running call", "tool_call_id", fc.ID, "error", err)
			return nil
		}
		return out
	}
	return nil
}

func toolCallEvents(id string, fc runtime.FunctionCall) ([]events.Event, error) {
	out := []events.Event{events.NewToolCallStartEvent(id, fc.Name)}
	if len(fc.Args) > 0 {
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("encode args for %s: %w", fc.Name, err)
		}
		out = append(out, events.NewToolCallArgsEvent(id, string(args)))
	}
	return append(out, events.NewToolCallEndEvent(id)), nil
}

// ForceCloseStreamingMessage ends an open text message without recording
// it for duplicate detection.
func (t *Translator) ForceCloseStreamingMessage() []events.Event {
	if !t.msg.open() {
		return nil
	}
	id := t.msg.id
	t.logger.Debug("force-closing text message", "message_id", id)
	t.msg.id = ""
	t.msg.text = ""
	return []events.Event{events.NewTextMessageEndEvent(id)}
}

// Reset returns the translator to its initial state.
func (t *Translator) Reset() {
	t.msg = streamingMessage{}
	clear(t.activeCalls)
	t.clientCalls = nil
}

// pointerEscaper escapes a key for use as a JSON Pointer reference token.
var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// StateDeltaOps converts a state delta into JSON Patch operations, one per
// key, ordered by key. A nil value deletes its key and becomes "remove";
// every other value becomes "add".
func StateDeltaOps(delta map[string]any) []events.JSONPatchOperation {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ops := make([]events.JSONPatchOperation, 0, len(keys))
	for _, k := range keys {
		path := "/" + pointerEscaper.Replace(k)
		if delta[k] == nil {
			ops = append(ops, events.JSONPatchOperation{Op: "remove", Path: path})
			continue
		}
		ops = append(ops, events.JSONPatchOperation{Op: "add", Path: path, Value: delta[k]})
	}
	return ops
}

// serializeResponse renders a tool response as JSON, degrading to a JSON
// string of its printed form when it cannot be encoded.
func serializeResponse(resp map[string]any) string {
	if data, err := json.Marshal(resp); err == nil {
		return string(data)
	}
	data, err := json.Marshal(fmt.Sprint(resp))
	if err != nil {
		return `""`
	}
	return string(data)
}
