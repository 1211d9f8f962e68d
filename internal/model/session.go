// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation: an ordered message log plus metadata.
//
// The log is mutated from the UI event loop and from the streaming goroutine,
// so all access goes through mutex-guarded methods. Messages are never
// reordered; insertion order is conversation order.
type Session struct {
	mu sync.Mutex

	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, in conversation order.
	Messages []*Message `json:"messages"`
}

// NewSession creates a new empty session with a generated ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        generateID("sess"),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// LOG MUTATIONS
// =============================================================================

// Append adds a message at the end of the log.
func (s *Session) Append(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// SetText rewrites a message's text wholesale. Returns false if the message
// is not in the log (e.g. it belonged to a superseded generation).
func (s *Session) SetText(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.Messages {
		if msg.ID == id {
			msg.Text = text
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Finalize replaces a MODEL turn's text with the authoritative final text and
// attaches provenance metadata.
func (s *Session) Finalize(id, text, modelName string, keyIndex int, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.Messages {
		if msg.ID == id {
			msg.Text = text
			msg.Model = modelName
			msg.KeyIndex = keyIndex
			msg.ExecutionTime = elapsed
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Remove deletes a message by ID. Subsequent messages are untouched.
func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.Messages {
		if msg.ID == id {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// TruncateAfter discards every message after the one with the given ID,
// keeping the target itself. Returns false if the ID is not present.
func (s *Session) TruncateAfter(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.Messages {
		if msg.ID == id {
			s.Messages = s.Messages[:i+1]
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// =============================================================================
// LOG QUERIES
// =============================================================================

// Get returns a message by ID, or nil.
func (s *Session) Get(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// Last returns the most recent message, or nil if the log is empty.
func (s *Session) Last() *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages.
func (s *Session) IsEmpty() bool {
	return s.Len() == 0
}

// History returns a snapshot of the log. The returned slice is a copy; the
// messages themselves are shared, so callers must not mutate them.
func (s *Session) History() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// PrecedingUser walks backward from the message with the given ID (exclusive)
// to the nearest USER turn. Returns nil if the ID is absent or no USER turn
// precedes it.
func (s *Session) PrecedingUser(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, msg := range s.Messages {
		if msg.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for i := idx - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i]
		}
	}
	return nil
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// SetTitle sets the session title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Title = title
	s.UpdatedAt = time.Now()
}

// DisplayTitle returns the title, deriving one from the first USER turn when
// no explicit title has been set.
func (s *Session) DisplayTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Title != "" {
		return s.Title
	}
	for _, msg := range s.Messages {
		if msg.Role == RoleUser && msg.Text != "" {
			return firstLinePreview(msg.Text, 50)
		}
	}
	return "New chat"
}

// Transcript returns the conversation as role-labelled plain text. Used as
// the input of the title summarizer.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for _, msg := range s.Messages {
		if msg.Text == "" || msg.IsError {
			continue
		}
		sb.WriteString(msg.Role.DisplayName())
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// firstLinePreview truncates text to its first line, capped at maxLen runes.
func firstLinePreview(text string, maxLen int) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-3]) + "..."
}
