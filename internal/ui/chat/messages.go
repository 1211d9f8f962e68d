// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea message types used by the chat interface.
// Streaming state itself lives in the engine; the UI observes it once per
// animation frame, so the message surface stays small.
package chat

import (
	"time"

	"github.com/jeranaias/streamchat/internal/config"
)

// =============================================================================
// FRAME MESSAGES
// =============================================================================

// FrameTickMsg drives the reveal animation and viewport follow logic.
type FrameTickMsg time.Time

// =============================================================================
// GENERATION MESSAGES
// =============================================================================

// GenerationDoneMsg reports that the in-flight generation completed.
type GenerationDoneMsg struct {
	MessageID string
	Model     string
	KeyIndex  int
}

// GenerationFailedMsg reports that the in-flight generation failed and the
// placeholder was replaced by an error message.
type GenerationFailedMsg struct {
	MessageID string
	Err       error
}

// TitleUpdatedMsg reports a finished side-channel title summarization.
type TitleUpdatedMsg struct {
	Title string
	Err   error
}

// =============================================================================
// UI STATE MESSAGES
// =============================================================================

// NoticeMsg shows a transient status-line notice.
type NoticeMsg struct {
	Text string
}

// NoticeExpiredMsg clears the status-line notice.
type NoticeExpiredMsg struct{}

// ConfigReloadedMsg carries a live-reloaded configuration into the update
// loop, where it is applied between frames.
type ConfigReloadedMsg struct {
	Config *config.Config
}
