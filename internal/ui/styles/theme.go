// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the streamchat TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLOR PALETTE
// =============================================================================

var (
	Purple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

	Surface    = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}
	Overlay    = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	OverlayDim = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}
)

// =============================================================================
// THEME
// =============================================================================

// Theme bundles the styles used across the chat view.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Message rendering
	UserLabel  lipgloss.Style
	ModelLabel lipgloss.Style
	UserText   lipgloss.Style
	ModelText  lipgloss.Style
	ErrorText  lipgloss.Style
	Thought    lipgloss.Style
	Timestamp  lipgloss.Style

	// Chrome
	Header     lipgloss.Style
	StatusBar  lipgloss.Style
	StatusKey  lipgloss.Style
	InputFrame lipgloss.Style
	Notice     lipgloss.Style
}

// NewTheme builds the theme from the terminal's detected capabilities.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()

	return &Theme{
		IsDark:       isDark,
		ColorProfile: profile,

		UserLabel:  lipgloss.NewStyle().Foreground(Cyan).Bold(true),
		ModelLabel: lipgloss.NewStyle().Foreground(Purple).Bold(true),
		UserText:   lipgloss.NewStyle().Foreground(TextPrimary),
		ModelText:  lipgloss.NewStyle().Foreground(TextPrimary),
		ErrorText:  lipgloss.NewStyle().Foreground(Rose),
		Thought:    lipgloss.NewStyle().Foreground(TextMuted).Italic(true),
		Timestamp:  lipgloss.NewStyle().Foreground(TextMuted),

		Header: lipgloss.NewStyle().
			Foreground(TextPrimary).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(OverlayDim),
		StatusBar: lipgloss.NewStyle().
			Foreground(TextSecondary).
			Background(Overlay),
		StatusKey: lipgloss.NewStyle().Foreground(Amber),
		InputFrame: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(OverlayDim),
		Notice: lipgloss.NewStyle().Foreground(Amber),
	}
}
