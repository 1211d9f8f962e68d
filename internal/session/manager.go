// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session manages the collection of conversations and which one is
// active. The collection is never empty after any operation settles; exactly
// one session is active at a time.
package session

import (
	"errors"
	"sync"

	"github.com/jeranaias/streamchat/internal/model"
)

// ErrNotFound reports an operation on a session ID that is not in the
// collection.
var ErrNotFound = errors.New("session not found")

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the session collection. onDeactivate runs whenever the active
// session changes away (select, delete), before the swap; the caller uses it
// to cancel the in-flight generation and clear pending input.
type Manager struct {
	mu           sync.Mutex
	sessions     []*model.Session
	activeID     string
	onDeactivate func()
}

// NewManager creates a manager holding one fresh active session.
// onDeactivate may be nil.
func NewManager(onDeactivate func()) *Manager {
	m := &Manager{onDeactivate: onDeactivate}
	s := model.NewSession()
	m.sessions = []*model.Session{s}
	m.activeID = s.ID
	return m
}

// Load replaces the collection from persisted state. An empty collection or
// an unknown active ID falls back to a fresh session, keeping the
// never-empty invariant.
func (m *Manager) Load(sessions []*model.Session, activeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(sessions) == 0 {
		s := model.NewSession()
		m.sessions = []*model.Session{s}
		m.activeID = s.ID
		return
	}
	m.sessions = sessions
	m.activeID = sessions[0].ID
	for _, s := range sessions {
		if s.ID == activeID {
			m.activeID = activeID
			break
		}
	}
}

// Active returns the active session.
func (m *Manager) Active() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

// activeLocked resolves the active session. Caller holds the lock.
func (m *Manager) activeLocked() *model.Session {
	for _, s := range m.sessions {
		if s.ID == m.activeID {
			return s
		}
	}
	// Unreachable while the invariants hold, but never return nil.
	return m.sessions[0]
}

// Sessions returns a snapshot of the collection in order.
func (m *Manager) Sessions() []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Snapshot returns deep copies of the collection in order. Persistence
// serializes the snapshot instead of the live sessions, so a streaming
// goroutine rewriting message text never races the marshal.
func (m *Manager) Snapshot() []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out
}

// ActiveID returns the active session's ID.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Count returns the number of sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Create adds a fresh session and activates it. Always succeeds.
func (m *Manager) Create() *model.Session {
	m.deactivate()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.NewSession()
	m.sessions = append(m.sessions, s)
	m.activeID = s.ID
	return s
}

// Select activates the session with the given ID. Selecting the already
// active session is a no-op that does not disturb an in-flight generation.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	if id == m.activeID {
		m.mu.Unlock()
		return nil
	}
	found := false
	for _, s := range m.sessions {
		if s.ID == id {
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return ErrNotFound
	}

	m.deactivate()
	m.mu.Lock()
	m.activeID = id
	m.mu.Unlock()
	return nil
}

// Next cycles to the session after the active one, wrapping around.
func (m *Manager) Next() *model.Session {
	m.mu.Lock()
	idx := 0
	for i, s := range m.sessions {
		if s.ID == m.activeID {
			idx = i
			break
		}
	}
	next := m.sessions[(idx+1)%len(m.sessions)]
	id := next.ID
	m.mu.Unlock()

	// Same session when the collection has one entry; nothing to switch.
	_ = m.Select(id)
	return next
}

// Delete removes a session. Deleting the active session activates the next
// one in order; deleting the last session creates a fresh replacement, so
// the collection never settles empty.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	idx := -1
	for i, s := range m.sessions {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	wasActive := id == m.activeID
	m.mu.Unlock()

	if wasActive {
		m.deactivate()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)

	if len(m.sessions) == 0 {
		s := model.NewSession()
		m.sessions = []*model.Session{s}
		m.activeID = s.ID
		return nil
	}
	if wasActive {
		if idx >= len(m.sessions) {
			idx = len(m.sessions) - 1
		}
		m.activeID = m.sessions[idx].ID
	}
	return nil
}

// deactivate runs the deactivation hook outside the lock; it may call back
// into the manager.
func (m *Manager) deactivate() {
	if m.onDeactivate != nil {
		m.onDeactivate()
	}
}
