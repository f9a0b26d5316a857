package llm

import (
	"context"

	bridge "github.com/spetersoncode/aguibridge"
)

// Request is one model call.
type Request struct {
	// System is the resolved agent instruction.
	System    string
	Messages  []bridge.Message
	Tools     []bridge.ToolDeclaration
	MaxTokens int
}

// Model streams a chat completion. The channel carries text deltas and
// ends with a Done event holding the full response, or an event with Err.
// Implementations stop sending once ctx is done.
type Model interface {
	Stream(ctx context.Context, req Request) (<-chan bridge.StreamEvent, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req Request) (<-chan bridge.StreamEvent, error)

func (f ModelFunc) Stream(ctx context.Context, req Request) (<-chan bridge.StreamEvent, error) {
	return f(ctx, req)
}

// Send delivers ev on ch unless ctx is done first. Adapters use it so an
// abandoned stream does not leak its producer.
func Send(ctx context.Context, ch chan<- bridge.StreamEvent, ev bridge.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
