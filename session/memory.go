package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	bridge "github.com/spetersoncode/aguibridge"
	"github.com/spetersoncode/aguibridge/runtime"
)

// MemoryStore provides thread-safe in-memory session storage.
// Sessions are returned as copies.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithStoreClock sets the clock used for LastUpdate. Defaults to time.Now.
func WithStoreClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves a session by reference.
func (m *MemoryStore) Get(_ context.Context, ref Ref) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[ref.Key()]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// Create stores a new session. Creating an existing session is an error.
func (m *MemoryStore) Create(_ context.Context, ref Ref, state map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[ref.Key()]; exists {
		return nil, fmt.Errorf("session: %s already exists", ref.Key())
	}
	s := &Session{
		AppName:    ref.AppName,
		UserID:     ref.UserID,
		ID:         ref.ID,
		State:      maps.Clone(state),
		LastUpdate: m.now(),
	}
	if s.State == nil {
		s.State = make(map[string]any)
	}
	m.sessions[ref.Key()] = s
	return s.Clone(), nil
}

// AppendEvent appends ev and applies its state delta. Partial events are
// not recorded.
func (m *MemoryStore) AppendEvent(_ context.Context, ref Ref, ev *runtime.Event) error {
	if ev == nil || ev.Partial {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ref.Key()]
	if !ok {
		return fmt.Errorf("session: append to %s: %w", ref.Key(), bridge.ErrSessionNotFound)
	}
	for k, v := range ev.Actions.StateDelta {
		if v == nil {
			delete(s.State, k)
			continue
		}
		s.State[k] = v
	}
	s.Events = append(s.Events, ev)
	s.LastUpdate = m.now()
	return nil
}

// Delete removes a session. Deleting a missing session is a no-op.
func (m *MemoryStore) Delete(_ context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, ref.Key())
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
