package toolproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/santhosh-tekuri/jsonschema/v5"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/runtime"
)

// Sink receives the events a proxy emits. Emit blocks until the event is
// accepted or ctx is done.
type Sink interface {
	Emit(ctx context.Context, ev events.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev events.Event) error

func (f SinkFunc) Emit(ctx context.Context, ev events.Event) error { return f(ctx, ev) }

// Proxy is a long-running runtime.Tool standing in for a client tool.
type Proxy struct {
	decl   bridge.ToolDeclaration
	schema *jsonschema.Schema
	sink   Sink
	logger *slog.Logger
}

var _ runtime.Tool = (*Proxy)(nil)

// NewProxy builds a proxy for decl. Parameters that are missing or not a
// JSON object fall back to an empty object schema. A schema that does not
// compile is an error.
func NewProxy(decl bridge.ToolDeclaration, sink Sink, logger *slog.Logger) (*Proxy, error) {
	if decl.Name == "" {
		return nil, &InvalidToolError{Reason: "empty name"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	params := decl.Parameters
	if !isObject(params) {
		if len(params) > 0 {
			logger.Warn("tool parameters are not an object, using empty schema", "tool", decl.Name)
		}
		params = bridge.EmptyObjectSchema
	}
	decl.Parameters = params

	schema, err := jsonschema.CompileString(decl.Name+".schema.json", string(params))
	if err != nil {
		return nil, &InvalidToolError{Name: decl.Name, Reason: "compile parameters", Err: err}
	}

	return &Proxy{decl: decl, schema: schema, sink: sink, logger: logger}, nil
}

func isObject(raw json.RawMessage) bool {
	var v map[string]any
	return len(raw) > 0 && json.Unmarshal(raw, &v) == nil && v != nil
}

func (p *Proxy) Name() string                { return p.decl.Name }
func (p *Proxy) Description() string         { return p.decl.Description }
func (p *Proxy) Parameters() json.RawMessage { return p.decl.Parameters }
func (p *Proxy) LongRunning() bool           { return true }

// Declaration returns the normalized client declaration.
func (p *Proxy) Declaration() bridge.ToolDeclaration { return p.decl }

// Call announces the call to the client and returns a nil result. The call
// id comes from the runtime; a fresh "call_" id is used when it has none.
// Arguments that violate the declared schema are rejected without emitting.
func (p *Proxy) Call(ctx context.Context, tc runtime.ToolContext, args map[string]any) (map[string]any, error) {
	if err := p.schema.Validate(any(normalizeArgs(args))); err != nil {
		return nil, &ArgumentError{Tool: p.decl.Name, Err: err}
	}

	id := tc.FunctionCallID
	if id == "" {
		id = bridge.NewCallID()
		p.logger.Warn("runtime did not supply a function call id", "tool", p.decl.Name, "generated_id", id)
	}

	evs := []events.Event{events.NewToolCallStartEvent(id, p.decl.Name)}
	if len(args) > 0 {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, &ArgumentError{Tool: p.decl.Name, Err: err}
		}
		evs = append(evs, events.NewToolCallArgsEvent(id, string(data)))
	}
	evs = append(evs, events.NewToolCallEndEvent(id))

	for _, ev := range evs {
		if err := p.sink.Emit(ctx, ev); err != nil {
			return nil, fmt.Errorf("toolproxy: emit %s for %s: %w", ev.Type(), p.decl.Name, err)
		}
	}
	p.logger.Debug("client tool call announced", "tool", p.decl.Name, "tool_call_id", id)
	return nil, nil
}

// normalizeArgs returns args as plain JSON values so schema validation sees
// the same types a decoded request would.
func normalizeArgs(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return args
	}
	return v
}
