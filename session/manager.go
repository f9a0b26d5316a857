package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spetersoncode/aguibridge/internal/keylock"
	"github.com/spetersoncode/aguibridge/internal/metrics"
	"github.com/spetersoncode/aguibridge/runtime"
)

// PendingToolCallsKey is the state key listing client tool calls awaiting
// a result.
const PendingToolCallsKey = "pending_tool_calls"

// Defaults.
const (
	DefaultTimeout         = 20 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// Manager owns session lifecycle on top of a Store: creation, state
// updates, processed message tracking, per-user caps and expiry.
// It is safe for concurrent use.
type Manager struct {
	store    Store
	archiver Archiver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	timeout     time.Duration
	interval    time.Duration
	maxPerUser  int
	autoCleanup bool

	mu        sync.Mutex
	owners    map[string]Ref             // tracking key -> ref
	byUser    map[string]map[string]bool // user id -> tracking keys
	processed map[string]map[string]bool // tracking key -> message ids

	pending keylock.Map // serializes pending tool call updates per session

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets how long a session may sit idle before expiry.
func WithTimeout(d time.Duration) Option { return func(m *Manager) { m.timeout = d } }

// WithCleanupInterval sets how often expired sessions are swept.
func WithCleanupInterval(d time.Duration) Option { return func(m *Manager) { m.interval = d } }

// WithMaxSessionsPerUser caps concurrent sessions per user. Zero means no cap.
func WithMaxSessionsPerUser(n int) Option { return func(m *Manager) { m.maxPerUser = n } }

// WithAutoCleanup enables the background sweeper, started on first use.
// Enabled by default.
func WithAutoCleanup(enabled bool) Option { return func(m *Manager) { m.autoCleanup = enabled } }

// WithArchiver sets where sessions go before deletion.
func WithArchiver(a Archiver) Option { return func(m *Manager) { m.archiver = a } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithClock sets the clock used for expiry. Defaults to time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
		timeout:     DefaultTimeout,
		interval:    DefaultCleanupInterval,
		autoCleanup: true,
		owners:      make(map[string]Ref),
		byUser:      make(map[string]map[string]bool),
		processed:   make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger.Info("session manager initialized",
		"timeout", m.timeout,
		"cleanup_interval", m.interval,
		"max_per_user", m.maxPerUser,
		"archiver", m.archiver != nil,
	)
	return m
}

// GetOrCreate returns the session for ref, creating it with initial state
// when absent. Creating a session for a user at the cap first evicts that
// user's least recently updated session.
func (m *Manager) GetOrCreate(ctx context.Context, ref Ref, initial map[string]any) (*Session, error) {
	if m.maxPerUser > 0 && !m.tracked(ref) && m.UserSessionCount(ref.UserID) >= m.maxPerUser {
		m.evictOldest(ctx, ref.UserID)
	}

	s, ok, err := m.store.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", ref.Key(), err)
	}
	if !ok {
		s, err = m.store.Create(ctx, ref, initial)
		if err != nil {
			return nil, fmt.Errorf("session: create %s: %w", ref.Key(), err)
		}
		m.logger.Info("created session", "session", ref.Key(), "user_id", ref.UserID)
	}

	m.track(ref)
	if m.autoCleanup {
		m.Start()
	}
	return s, nil
}

// Get returns the session for ref without creating it.
func (m *Manager) Get(ctx context.Context, ref Ref) (*Session, bool, error) {
	return m.store.Get(ctx, ref)
}

// UpdateState merges updates into the session state by appending a
// system-authored event carrying them as a delta. It reports false without
// error when the session does not exist or updates is empty.
func (m *Manager) UpdateState(ctx context.Context, ref Ref, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	if _, ok, err := m.store.Get(ctx, ref); err != nil || !ok {
		if !ok && err == nil {
			m.logger.Debug("session not found for state update", "session", ref.Key())
		}
		return false, err
	}

	ev := &runtime.Event{
		ID:           uuid.NewString(),
		InvocationID: fmt.Sprintf("state_update_%d", m.now().Unix()),
		Author:       runtime.AuthorSystem,
		Actions:      runtime.Actions{StateDelta: maps.Clone(updates)},
		Timestamp:    m.now(),
	}
	if err := m.store.AppendEvent(ctx, ref, ev); err != nil {
		return false, fmt.Errorf("session: update state of %s: %w", ref.Key(), err)
	}
	return true, nil
}

// AppendEvent records a runtime event in the session history, applying its
// state delta.
func (m *Manager) AppendEvent(ctx context.Context, ref Ref, ev *runtime.Event) error {
	if err := m.store.AppendEvent(ctx, ref, ev); err != nil {
		return fmt.Errorf("session: append event to %s: %w", ref.Key(), err)
	}
	return nil
}

// State returns a copy of the session state, or false when the session
// does not exist.
func (m *Manager) State(ctx context.Context, ref Ref) (map[string]any, bool, error) {
	s, ok, err := m.store.Get(ctx, ref)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.State, true, nil
}

// StateValue returns one state value, or def when the session or key is
// missing.
func (m *Manager) StateValue(ctx context.Context, ref Ref, key string, def any) any {
	state, ok, err := m.State(ctx, ref)
	if err != nil || !ok {
		return def
	}
	if v, ok := state[key]; ok {
		return v
	}
	return def
}

// SetStateValue sets a single state key.
func (m *Manager) SetStateValue(ctx context.Context, ref Ref, key string, value any) (bool, error) {
	return m.UpdateState(ctx, ref, map[string]any{key: value})
}

// RemoveStateKeys deletes the given keys from state. Keys not present are
// ignored; it reports true when there was nothing to remove.
func (m *Manager) RemoveStateKeys(ctx context.Context, ref Ref, keys ...string) (bool, error) {
	state, ok, err := m.State(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	delta := make(map[string]any)
	for _, k := range keys {
		if _, present := state[k]; present {
			delta[k] = nil
		}
	}
	if len(delta) == 0 {
		return true, nil
	}
	return m.UpdateState(ctx, ref, delta)
}

// ClearState removes every state key except those starting with one of
// preservePrefixes.
func (m *Manager) ClearState(ctx context.Context, ref Ref, preservePrefixes ...string) (bool, error) {
	state, ok, err := m.State(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	var remove []string
	for k := range state {
		if !hasAnyPrefix(k, preservePrefixes) {
			remove = append(remove, k)
		}
	}
	if len(remove) == 0 {
		return true, nil
	}
	return m.RemoveStateKeys(ctx, ref, remove...)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// InitializeState writes initial values. Unless overwrite is set, keys that
// already exist keep their values.
func (m *Manager) InitializeState(ctx context.Context, ref Ref, initial map[string]any, overwrite bool) (bool, error) {
	updates := initial
	if !overwrite {
		state, ok, err := m.State(ctx, ref)
		if err != nil {
			return false, err
		}
		if ok && len(state) > 0 {
			updates = make(map[string]any)
			for k, v := range initial {
				if _, exists := state[k]; !exists {
					updates[k] = v
				}
			}
			if len(updates) == 0 {
				return true, nil
			}
		}
	}
	return m.UpdateState(ctx, ref, updates)
}

// BulkUpdateUserState applies updates to every tracked session of userID,
// optionally only those of appFilter. It returns the outcome per tracking
// key.
func (m *Manager) BulkUpdateUserState(ctx context.Context, userID string, updates map[string]any, appFilter string) map[string]bool {
	results := make(map[string]bool)
	for _, ref := range m.userRefs(userID) {
		if appFilter != "" && ref.AppName != appFilter {
			continue
		}
		ok, err := m.UpdateState(ctx, ref, updates)
		if err != nil {
			m.logger.Error("bulk state update", "session", ref.Key(), "error", err)
		}
		results[ref.Key()] = ok
	}
	return results
}

// ProcessedMessageIDs returns a copy of the ids consumed for the session.
func (m *Manager) ProcessedMessageIDs(appName, sessionID string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.processed[Ref{AppName: appName, ID: sessionID}.Key()])
}

// MarkMessagesProcessed records ids as consumed. Empty ids are ignored.
func (m *Manager) MarkMessagesProcessed(appName, sessionID string, ids ...string) {
	key := Ref{AppName: appName, ID: sessionID}.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.processed[key]
	if set == nil {
		set = make(map[string]bool)
		m.processed[key] = set
	}
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
}

// Delete archives (when configured) and removes the session, then stops
// tracking it. Archive and store failures are logged.
func (m *Manager) Delete(ctx context.Context, ref Ref) {
	m.delete(ctx, ref, "deleted")
}

func (m *Manager) delete(ctx context.Context, ref Ref, reason string) {
	if m.archiver != nil {
		if s, ok, err := m.store.Get(ctx, ref); err == nil && ok {
			if err := m.archiver.Archive(ctx, s); err != nil {
				m.logger.Error("archive session", "session", ref.Key(), "error", err)
			}
		}
	}
	if err := m.store.Delete(ctx, ref); err != nil {
		m.logger.Error("delete session", "session", ref.Key(), "error", err)
	}
	m.untrack(ref)
	m.metrics.SessionRemoved(reason)
	m.logger.Debug("session removed", "session", ref.Key(), "reason", reason)
}

// SessionCount returns the number of tracked sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}

// UserSessionCount returns the number of tracked sessions for userID.
func (m *Manager) UserSessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser[userID])
}

// Lookup returns the tracked reference for a session id within appName.
func (m *Manager) Lookup(appName, sessionID string) (Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.owners[Ref{AppName: appName, ID: sessionID}.Key()]
	return ref, ok
}

func (m *Manager) tracked(ref Ref) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.owners[ref.Key()]
	return ok
}

func (m *Manager) track(ref Ref) {
	m.mu.Lock()
	key := ref.Key()
	m.owners[key] = ref
	if m.byUser[ref.UserID] == nil {
		m.byUser[ref.UserID] = make(map[string]bool)
	}
	m.byUser[ref.UserID][key] = true
	n := len(m.owners)
	m.mu.Unlock()
	m.metrics.SetSessions(n)
}

func (m *Manager) untrack(ref Ref) {
	m.mu.Lock()
	key := ref.Key()
	delete(m.owners, key)
	delete(m.processed, key)
	if set := m.byUser[ref.UserID]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(m.byUser, ref.UserID)
		}
	}
	n := len(m.owners)
	m.mu.Unlock()
	m.metrics.SetSessions(n)
}

func (m *Manager) userRefs(userID string) []Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]Ref, 0, len(m.byUser[userID]))
	for key := range m.byUser[userID] {
		refs = append(refs, m.owners[key])
	}
	return refs
}

func (m *Manager) evictOldest(ctx context.Context, userID string) {
	var (
		oldest Ref
		when   time.Time
		found  bool
	)
	for _, ref := range m.userRefs(userID) {
		s, ok, err := m.store.Get(ctx, ref)
		if err != nil {
			m.logger.Error("inspect session for eviction", "session", ref.Key(), "error", err)
			continue
		}
		if ok && (!found || s.LastUpdate.Before(when)) {
			oldest, when, found = ref, s.LastUpdate, true
		}
	}
	if found {
		m.delete(ctx, oldest, "evicted")
		m.logger.Info("removed oldest session for user", "user_id", userID, "session", oldest.Key())
	}
}
