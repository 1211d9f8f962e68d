// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/provider"
)

// Update handles all Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		cmd, handled := m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		// A matched binding consumes the key; the draft input must not
		// also interpret the chord (textinput binds ctrl+d, ctrl+e, ...).
		if handled {
			return m, tea.Batch(cmds...)
		}

	case FrameTickMsg:
		cmds = append(cmds, m.onFrame()...)
		cmds = append(cmds, frameTick())

	case GenerationDoneMsg:
		m.generating = false
		m.lastModel = msg.Model
		m.lastKeyIndex = msg.KeyIndex
		m.finalSnap = true

	case GenerationFailedMsg:
		m.generating = false
		m.finalSnap = true
		cmds = append(cmds, notice("Generation failed"), expireNotice())

	case TitleUpdatedMsg:
		if msg.Err != nil {
			cmds = append(cmds, notice("Title generation failed"), expireNotice())
		}

	case NoticeMsg:
		m.notice = msg.Text
		cmds = append(cmds, expireNotice())

	case NoticeExpiredMsg:
		m.notice = ""

	case ConfigReloadedMsg:
		m.applyConfig(msg.Config)
		cmds = append(cmds, notice("Configuration reloaded"), expireNotice())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Text input gets every message it cares about.
	if _, ok := msg.(tea.KeyMsg); ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// resize lays the components out for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 2
	inputHeight := 3
	statusHeight := 1
	vpHeight := height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = width - 4
	m.refreshViewport()
}

// =============================================================================
// KEY HANDLING
// =============================================================================

// handleKey runs the matched binding. The second return reports whether a
// binding consumed the key.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.controller.Cancel()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Send):
		return m.sendInput(), true

	case key.Matches(msg, m.keys.Cancel):
		if m.controller.IsGenerating() {
			m.controller.Cancel()
			m.generating = false
			return tea.Batch(notice("Stopped"), expireNotice()), true
		}
		return nil, true

	case key.Matches(msg, m.keys.NewChat):
		m.sessions.Create()
		m.persist()
		m.generating = false
		m.refreshViewport()
		return nil, true

	case key.Matches(msg, m.keys.NextChat):
		if m.sessions.Count() > 1 {
			m.sessions.Next()
			m.generating = false
			m.refreshViewport()
		}
		return nil, true

	case key.Matches(msg, m.keys.DeleteChat):
		id := m.sessions.ActiveID()
		if err := m.sessions.Delete(id); err == nil {
			m.persist()
			m.generating = false
			m.refreshViewport()
			return tea.Batch(notice("Chat deleted"), expireNotice()), true
		}
		return nil, true

	case key.Matches(msg, m.keys.Regenerate):
		return m.regenerateLast(), true

	case key.Matches(msg, m.keys.Summarize):
		return m.summarizeTitle(), true

	case key.Matches(msg, m.keys.Export):
		return m.exportActive(), true

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		m.noteScroll()
		return nil, true

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfViewDown()
		m.noteScroll()
		return nil, true
	}
	return nil, false
}

// sendInput submits the input line as a prompt.
func (m *Model) sendInput() tea.Cmd {
	sess := m.sessions.Active()
	text := m.input.Value()

	err := m.controller.Send(sess, text)
	switch {
	case err == nil:
		m.input.SetValue("")
		m.generating = true
		m.genStart = time.Now()
		m.beginFollow()
		return nil
	case errors.Is(err, chat.ErrBlankPrompt):
		return nil
	case errors.Is(err, chat.ErrBusy):
		return tea.Batch(notice("Wait for the current response to finish"), expireNotice())
	case errors.Is(err, provider.ErrNoCredentials):
		return tea.Batch(notice("No active API credentials configured"), expireNotice())
	default:
		return tea.Batch(notice(err.Error()), expireNotice())
	}
}

// regenerateLast replays the most recent answer.
func (m *Model) regenerateLast() tea.Cmd {
	sess := m.sessions.Active()
	last := sess.Last()
	if last == nil {
		return nil
	}
	if err := m.controller.Regenerate(sess, last.ID); err != nil {
		if errors.Is(err, provider.ErrNoCredentials) {
			return tea.Batch(notice("No active API credentials configured"), expireNotice())
		}
		return tea.Batch(notice(err.Error()), expireNotice())
	}
	if m.controller.IsGenerating() {
		m.generating = true
		m.genStart = time.Now()
		m.beginFollow()
	}
	m.refreshViewport()
	return nil
}

// summarizeTitle kicks off the side-channel title generation.
func (m *Model) summarizeTitle() tea.Cmd {
	sess := m.sessions.Active()
	err := m.controller.Summarize(sess, func(title string, err error) {
		m.inbox.push(TitleUpdatedMsg{Title: title, Err: err})
	})
	if err != nil {
		return tea.Batch(notice("Nothing to summarize"), expireNotice())
	}
	return tea.Batch(notice("Generating title..."), expireNotice())
}

// exportActive writes the active session next to the config as JSON.
func (m *Model) exportActive() tea.Cmd {
	sess := m.sessions.Active()
	if sess.IsEmpty() {
		return tea.Batch(notice("Nothing to export"), expireNotice())
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return tea.Batch(notice("Export failed: "+err.Error()), expireNotice())
	}
	name := fmt.Sprintf("streamchat-%s.json", time.Now().Format("20060102-150405"))
	path := filepath.Join(home, ".streamchat", "exports", name)
	if err := export.WriteFile(sess, path); err != nil {
		return tea.Batch(notice("Export failed: "+err.Error()), expireNotice())
	}
	return tea.Batch(notice("Exported to "+path), expireNotice())
}

// =============================================================================
// FRAME HANDLING
// =============================================================================

// onFrame runs once per animation tick: drain engine events, advance the
// reveal, and keep the viewport following.
func (m *Model) onFrame() []tea.Cmd {
	var cmds []tea.Cmd

	for _, ev := range m.inbox.drain() {
		ev := ev
		cmds = append(cmds, func() tea.Msg { return ev })
	}

	moved := m.animator.Step()
	if moved || m.generating || m.finalSnap || m.snapTopMsgID != "" {
		m.refreshViewport()
	}
	return cmds
}

// beginFollow arms the snap-answer-to-top behavior for the placeholder that
// Send or Regenerate just appended.
func (m *Model) beginFollow() {
	sess := m.sessions.Active()
	if last := sess.Last(); last != nil {
		m.snapTopMsgID = last.ID
	}
	m.scroll.OnCountChange(sess.Len())
}

// applyConfig carries live-reloaded knobs into the running engine. The
// credential pool is only reseeded when the file actually lists credentials,
// so removing the section does not wipe a persisted pool.
func (m *Model) applyConfig(cfg *config.Config) {
	m.controller.SetParams(cfg.Generation.Params())
	m.controller.SetInstruction(cfg.Generation.Instruction)
	m.animator.SetEnabled(cfg.UI.AnimationEnabled)
	m.showThoughts = cfg.UI.ShowThoughts
	if len(cfg.Credentials) > 0 {
		m.pool.SetCredentials(cfg.Credentials)
	}
}

// noteScroll recomputes follow intent from the viewport position.
func (m *Model) noteScroll() {
	m.scroll.OnScroll(m.viewport.YOffset, m.viewport.TotalLineCount(), m.viewport.Height)
}
