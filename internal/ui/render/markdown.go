// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render formats settled model answers for display.
//
// Markdown rendering runs through glamour only once a message has finished
// animating; text still revealing is shown raw so the reveal cursor lines up
// with what streamed in.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders settled answer text. Renderers are cached per width
// because glamour construction is costly.
type Markdown struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	width    int
	dark     bool
	enabled  bool
}

// NewMarkdown creates a renderer. When disabled, Render passes text through.
func NewMarkdown(enabled, dark bool) *Markdown {
	return &Markdown{enabled: enabled, dark: dark}
}

// Render formats markdown for the given wrap width. On any renderer error
// the raw text is returned; display never fails.
func (m *Markdown) Render(text string, width int) string {
	if !m.enabled || strings.TrimSpace(text) == "" {
		return text
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil || m.width != width {
		style := "light"
		if m.dark {
			style = "dark"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
			glamour.WithEmoji(),
		)
		if err != nil {
			return text
		}
		m.renderer = r
		m.width = width
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
