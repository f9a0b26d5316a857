package agui

import (
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	bridge "github.com/spetersoncode/aguibridge"
)

// Mapper produces the run lifecycle events for one thread and run.
type Mapper struct {
	threadID string
	runID    string
}

// NewMapper creates a new Mapper for a single run.
// Empty ids are generated.
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{threadID: threadID, runID: runID}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string { return m.threadID }

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string { return m.runID }

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event for err. A *bridge.RunError anywhere in
// the chain supplies the code and client-facing message; anything else is
// reported with fallback.
func (m *Mapper) RunError(err error, fallback bridge.RunErrorCode) events.Event {
	var re *bridge.RunError
	if errors.As(err, &re) {
		return m.RunErrorCode(re.Code, re.Msg)
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return m.RunErrorCode(fallback, msg)
}

// RunErrorCode returns a RUN_ERROR event with an explicit code.
func (m *Mapper) RunErrorCode(code bridge.RunErrorCode, msg string) events.Event {
	return events.NewRunErrorEvent(msg,
		events.WithErrorCode(string(code)),
		events.WithRunID(m.runID),
	)
}

// StateSnapshot returns a STATE_SNAPSHOT event.
func (m *Mapper) StateSnapshot(state map[string]any) events.Event {
	return events.NewStateSnapshotEvent(state)
}
