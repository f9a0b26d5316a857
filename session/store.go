package session

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/spetersoncode/aguibridge/runtime"
)

// Ref identifies a session. Sessions are keyed by (AppName, ID); UserID is
// the owner.
type Ref struct {
	AppName string
	UserID  string
	ID      string
}

// Key returns the "app:id" tracking key.
func (r Ref) Key() string { return r.AppName + ":" + r.ID }

// Session is a snapshot of one conversation thread.
type Session struct {
	AppName    string
	UserID     string
	ID         string
	State      map[string]any
	Events     []*runtime.Event
	LastUpdate time.Time
}

// Ref returns the session's reference.
func (s *Session) Ref() Ref { return Ref{AppName: s.AppName, UserID: s.UserID, ID: s.ID} }

// Clone returns a copy whose state map and event slice can be modified
// without affecting s.
func (s *Session) Clone() *Session {
	c := *s
	c.State = maps.Clone(s.State)
	if c.State == nil {
		c.State = make(map[string]any)
	}
	c.Events = slices.Clone(s.Events)
	return &c
}

// Store persists sessions.
type Store interface {
	// Get returns the session and true, or false when it does not exist.
	Get(ctx context.Context, ref Ref) (*Session, bool, error)
	Create(ctx context.Context, ref Ref, state map[string]any) (*Session, error)
	// AppendEvent records ev in the session history and applies its state
	// delta. Keys whose delta value is nil are removed from state.
	AppendEvent(ctx context.Context, ref Ref, ev *runtime.Event) error
	Delete(ctx context.Context, ref Ref) error
}

// Archiver receives sessions about to be deleted, for long-term memory.
type Archiver interface {
	Archive(ctx context.Context, s *Session) error
}

// ArchiverFunc adapts a function to the Archiver interface.
type ArchiverFunc func(ctx context.Context, s *Session) error

func (f ArchiverFunc) Archive(ctx context.Context, s *Session) error { return f(ctx, s) }
