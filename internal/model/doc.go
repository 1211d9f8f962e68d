// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types used throughout the application
// for representing multi-session conversation history.
//
// # Key Types
//
//   - Session: one conversation; an ordered, append-only-in-order message log
//   - Message: a single turn with role, text, timestamp, and provenance
//   - Role: message role enumeration (user, model)
//
// The message log is the single source of truth for a conversation. All
// mutations go through Session methods so that ordering invariants hold:
// messages are never reordered, and a streaming placeholder reserves its
// position in the log before any content arrives.
package model
