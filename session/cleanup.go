package session

import (
	"context"
	"time"
)

// Start launches the background sweeper. Calling it more than once, or on a
// manager with a non-positive cleanup interval, does nothing.
func (m *Manager) Start() {
	if m.interval <= 0 {
		return
	}
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.loop(ctx)
		m.logger.Debug("session sweeper started", "interval", m.interval)
	})
}

// Stop halts the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		// Prevent a later Start from launching a sweeper that is never stopped.
		m.startOnce.Do(func() {})
		if m.cancel == nil {
			return
		}
		m.cancel()
		<-m.done
		m.logger.Debug("session sweeper stopped")
	})
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				m.logger.Info("cleaned up expired sessions", "count", n)
			}
		}
	}
}

// Sweep removes sessions idle for longer than the timeout and returns how
// many were removed. Sessions awaiting client tool results are kept;
// tracked sessions missing from the store are forgotten.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	refs := make([]Ref, 0, len(m.owners))
	for _, ref := range m.owners {
		refs = append(refs, ref)
	}
	m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		s, ok, err := m.store.Get(ctx, ref)
		if err != nil {
			m.logger.Error("inspect session during sweep", "session", ref.Key(), "error", err)
			continue
		}
		if !ok {
			m.untrack(ref)
			continue
		}
		if now.Sub(s.LastUpdate) <= m.timeout {
			continue
		}
		if pending := pendingFromState(s.State); len(pending) > 0 {
			m.logger.Info("keeping expired session with pending tool calls",
				"session", ref.Key(), "pending", len(pending))
			continue
		}
		m.delete(ctx, ref, "expired")
		removed++
	}
	return removed
}
