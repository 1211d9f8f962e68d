// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming-response lifecycle and the
// incremental-rendering engine.
//
// # Key Types
//
//   - Channel: owns the single in-flight generation; appends the placeholder
//     MODEL message, streams cumulative text into the session log, and
//     resolves to completion, silent cancellation, or an error replacement
//   - Animator: paces the on-screen reveal of streamed text with
//     displayed/target cursors and backlog-proportional catch-up
//   - ScrollController: sticky-bottom follow plus snap-new-answer-to-top
//   - Controller: conversation operations (send, edit, delete, regenerate,
//     summarize) orchestrating the channel against the session log
//
// The package is UI-framework-free. The terminal front end drives Step and
// the scroll hooks from its frame tick and reads visible text back out; the
// streaming goroutine only ever touches the mutex-guarded session log and
// the animator.
package chat
