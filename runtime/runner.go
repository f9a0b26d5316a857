package runtime

import (
	"context"
	"iter"
	"time"
)

// Invocation is one drive of the runtime.
type Invocation struct {
	ID        string
	Agent     *Agent
	AppName   string
	UserID    string
	SessionID string

	// State and History are snapshots of the session at invocation start.
	State   map[string]any
	History []*Event

	// NewMessage is the input for this turn.
	NewMessage *Content

	// ToolTimeout bounds a single tool call. Zero means no limit.
	ToolTimeout time.Duration
}

// Runner drives an agent for one invocation and yields its events in order.
// Stopping iteration early cancels the invocation.
type Runner interface {
	Run(ctx context.Context, inv Invocation) iter.Seq2[*Event, error]
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) iter.Seq2[*Event, error]

func (f RunnerFunc) Run(ctx context.Context, inv Invocation) iter.Seq2[*Event, error] {
	return f(ctx, inv)
}
