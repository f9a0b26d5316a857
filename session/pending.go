package session

import (
	"context"
	"fmt"
	"slices"

	bridge "github.com/spetersoncode/aguibridge"
)

// PendingToolCalls returns the ids of client tool calls still awaiting a
// result. A missing session has none.
func (m *Manager) PendingToolCalls(ctx context.Context, ref Ref) ([]string, error) {
	state, ok, err := m.State(ctx, ref)
	if err != nil || !ok {
		return nil, err
	}
	return pendingFromState(state), nil
}

// HasPendingToolCalls reports whether the session awaits any client tool
// result.
func (m *Manager) HasPendingToolCalls(ctx context.Context, ref Ref) (bool, error) {
	ids, err := m.PendingToolCalls(ctx, ref)
	return len(ids) > 0, err
}

// AddPendingToolCalls records ids as awaiting a client result. Ids already
// pending are not duplicated.
func (m *Manager) AddPendingToolCalls(ctx context.Context, ref Ref, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	unlock := m.pending.Lock(ref.Key())
	defer unlock()

	state, ok, err := m.State(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session: add pending tool calls to %s: %w", ref.Key(), bridge.ErrSessionNotFound)
	}
	pending := pendingFromState(state)
	for _, id := range ids {
		if id != "" && !slices.Contains(pending, id) {
			pending = append(pending, id)
		}
	}
	_, err = m.SetStateValue(ctx, ref, PendingToolCallsKey, pending)
	return err
}

// RemovePendingToolCall drops id from the pending list. It reports whether
// id was pending.
func (m *Manager) RemovePendingToolCall(ctx context.Context, ref Ref, id string) (bool, error) {
	unlock := m.pending.Lock(ref.Key())
	defer unlock()

	state, ok, err := m.State(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	pending := pendingFromState(state)
	i := slices.Index(pending, id)
	if i < 0 {
		return false, nil
	}
	pending = slices.Delete(pending, i, i+1)
	_, err = m.SetStateValue(ctx, ref, PendingToolCallsKey, pending)
	return err == nil, err
}

// pendingFromState reads the pending list, which may have passed through
// JSON and come back as []any.
func pendingFromState(state map[string]any) []string {
	switch v := state[PendingToolCallsKey].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
