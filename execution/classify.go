package execution

import (
	"slices"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/aguibridge/agui"
)

// Batch is a group of unseen messages forwarded to one execution.
type Batch struct {
	// ToolResults holds consecutive tool messages. Empty for a plain
	// message batch.
	ToolResults []events.Message

	// Messages holds the user and system messages sent with the batch.
	Messages []events.Message
}

// IsToolBatch reports whether the batch resolves client tool calls.
func (b Batch) IsToolBatch() bool { return len(b.ToolResults) > 0 }

// Plan is the outcome of classifying a request's messages.
type Plan struct {
	// Unseen counts the messages not yet processed.
	Unseen int

	// Batches are the executions to run, in order.
	Batches []Batch

	// Consumed lists ids consumed without being forwarded: assistant
	// messages already reflected in history and stale tool results.
	Consumed []string
}

// Claimed returns every id the plan acts on: the consumed ids followed by
// the ids of each batch.
func (p Plan) Claimed() []string {
	ids := slices.Clone(p.Consumed)
	for _, b := range p.Batches {
		ids = append(ids, messageIDs(b.ToolResults)...)
		ids = append(ids, messageIDs(b.Messages)...)
	}
	return ids
}

// Pending is the thread's set of client tool calls awaiting results.
// Known is false when the thread's session could not be resolved; tool
// batches are then never treated as stale.
type Pending struct {
	IDs   []string
	Known bool
}

// Classify splits the messages of a request that are not in processed into
// batches. Consecutive tool messages form a tool batch, which carries along
// the user and system messages that follow it up to the next tool message.
// A tool batch answering none of a non-empty pending set is stale: its ids
// are consumed and it is dropped.
func Classify(messages []events.Message, processed map[string]bool, pending Pending) Plan {
	var plan Plan

	unseen := make([]events.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != "" && processed[m.ID] {
			continue
		}
		unseen = append(unseen, m)
	}
	plan.Unseen = len(unseen)

	// An assistant-only run means the following tool batch is forwarded
	// without its own messages as candidates.
	skipToolMessages := false

	for i := 0; i < len(unseen); {
		if unseen[i].Role == agui.RoleTool {
			start := i
			for i < len(unseen) && unseen[i].Role == agui.RoleTool {
				i++
			}
			tools := unseen[start:i]

			if isStale(tools, pending) {
				plan.Consumed = append(plan.Consumed, messageIDs(tools)...)
				skipToolMessages = false
				continue
			}

			var trailing []events.Message
			var assistantIDs []string
			j := i
			for j < len(unseen) && unseen[j].Role != agui.RoleTool {
				if unseen[j].Role == agui.RoleAssistant {
					if unseen[j].ID != "" {
						assistantIDs = append(assistantIDs, unseen[j].ID)
					}
				} else {
					trailing = append(trailing, unseen[j])
				}
				j++
			}
			if len(trailing) > 0 || len(assistantIDs) > 0 {
				i = j
				plan.Consumed = append(plan.Consumed, assistantIDs...)
			}

			batch := Batch{ToolResults: slices.Clone(tools), Messages: trailing}
			if len(trailing) == 0 && !skipToolMessages {
				batch.Messages = slices.Clone(tools)
			}
			plan.Batches = append(plan.Batches, batch)
			skipToolMessages = false
			continue
		}

		var batch []events.Message
		var assistantIDs []string
		for i < len(unseen) && unseen[i].Role != agui.RoleTool {
			if unseen[i].Role == agui.RoleAssistant {
				if unseen[i].ID != "" {
					assistantIDs = append(assistantIDs, unseen[i].ID)
				}
			} else {
				batch = append(batch, unseen[i])
			}
			i++
		}
		plan.Consumed = append(plan.Consumed, assistantIDs...)

		if len(batch) == 0 {
			if len(assistantIDs) > 0 {
				skipToolMessages = true
			}
			continue
		}
		skipToolMessages = false
		plan.Batches = append(plan.Batches, Batch{Messages: batch})
	}
	return plan
}

// isStale reports whether a tool run answers none of a known, non-empty
// pending set. An unknown or empty pending set never makes a run stale.
func isStale(tools []events.Message, pending Pending) bool {
	if !pending.Known || len(pending.IDs) == 0 {
		return false
	}
	for _, m := range tools {
		if id := agui.ToolCallID(m); id != "" && slices.Contains(pending.IDs, id) {
			return false
		}
	}
	return true
}

func messageIDs(msgs []events.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
