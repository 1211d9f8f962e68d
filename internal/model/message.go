// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a conversation.
//
// Text grows monotonically while a response streams in and may be rewritten
// wholesale by an edit or by the final authoritative replace at the end of a
// stream. Provenance fields (Model, KeyIndex, ExecutionTime) are attached
// only after a MODEL turn completes successfully.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Text string `json:"text"`

	// IsError marks a turn that holds a human-readable failure reason
	// instead of model output.
	IsError bool `json:"is_error,omitempty"`

	// Provenance (MODEL turns only, set on successful completion)
	Model         string        `json:"model,omitempty"`
	KeyIndex      int           `json:"key_index,omitempty"`
	ExecutionTime time.Duration `json:"execution_time_ns,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        generateID("msg"),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
		KeyIndex:  -1,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, text)
}

// NewPendingModelMessage creates the empty MODEL placeholder that reserves a
// position in the log before any streamed content arrives.
func NewPendingModelMessage() *Message {
	return NewMessage(RoleModel, "")
}

// NewErrorMessage creates a MODEL turn carrying a failure reason.
func NewErrorMessage(reason string) *Message {
	msg := NewMessage(RoleModel, reason)
	msg.IsError = true
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsEmpty returns true if the message has no text.
func (m *Message) IsEmpty() bool {
	return len(m.Text) == 0
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique, prefixed identifier.
func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
