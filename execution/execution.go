package execution

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
)

// Status values reported by Execution.Status.
const (
	StatusRunning               = "running"
	StatusTaskDone              = "task_done"
	StatusComplete              = "complete"
	StatusCompleteAwaitingTools = "complete_awaiting_tools"
)

// Execution is one background drive of the runtime for a thread. The
// driver goroutine writes to events and closes it when it is done; closing
// is the end-of-stream sentinel.
type Execution struct {
	ThreadID string
	RunID    string
	Started  time.Time

	events chan events.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	complete bool
	pending  []string
}

func newExecution(threadID, runID string, started time.Time, queueSize int, cancel context.CancelFunc) *Execution {
	return &Execution{
		ThreadID: threadID,
		RunID:    runID,
		Started:  started,
		events:   make(chan events.Event, queueSize),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Done is closed when the driver goroutine has exited.
func (e *Execution) Done() <-chan struct{} { return e.done }

func (e *Execution) driverDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// IsComplete reports whether the execution's stream has ended.
func (e *Execution) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

func (e *Execution) markComplete() {
	e.mu.Lock()
	e.complete = true
	e.mu.Unlock()
}

// IsStale reports whether the execution has outlived timeout.
func (e *Execution) IsStale(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(e.Started) > timeout
}

// Cancel stops the driver and marks the execution complete.
func (e *Execution) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
	e.markComplete()
}

// PendingToolCalls returns the client tool calls this execution emitted
// that have no result yet.
func (e *Execution) PendingToolCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.pending)
}

func (e *Execution) setPending(ids []string) {
	e.mu.Lock()
	e.pending = slices.Clone(ids)
	e.mu.Unlock()
}

// Status summarizes the execution's lifecycle stage.
func (e *Execution) Status() string {
	e.mu.Lock()
	complete, awaiting := e.complete, len(e.pending) > 0
	e.mu.Unlock()
	switch {
	case complete && awaiting:
		return StatusCompleteAwaitingTools
	case complete:
		return StatusComplete
	case e.driverDone():
		return StatusTaskDone
	default:
		return StatusRunning
	}
}
