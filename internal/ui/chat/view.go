// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/util"
)

// View renders the chat screen.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatus(),
	)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport rebuilds the transcript content and applies any pending
// scroll actions. Called once per frame while anything is moving and after
// every log mutation.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	sess := m.sessions.Active()
	msgs := sess.History()
	width := m.viewport.Width

	// Track each message's first content line so a fresh answer can be
	// snapped to the top of the viewport.
	topLines := make(map[string]int, len(msgs))
	var blocks []string
	line := 0
	for _, msg := range msgs {
		block := m.renderMessage(msg, width)
		topLines[msg.ID] = line
		blocks = append(blocks, block)
		line += lipgloss.Height(block) + 1
	}

	content := strings.Join(blocks, "\n\n")
	m.viewport.SetContent(content)
	m.scroll.OnCountChange(len(msgs))

	total := m.viewport.TotalLineCount()
	height := m.viewport.Height

	if m.snapTopMsgID != "" {
		if top, ok := topLines[m.snapTopMsgID]; ok {
			m.viewport.SetYOffset(m.scroll.OnGenerationStart(top))
		}
		m.snapTopMsgID = ""
		return
	}

	if m.finalSnap {
		m.finalSnap = false
		if offset, apply := m.scroll.OnGenerationEnd(total, height); apply {
			m.viewport.SetYOffset(offset)
		}
		return
	}

	if offset, apply := m.scroll.OnFrame(m.viewport.YOffset, total, height); apply {
		m.viewport.SetYOffset(offset)
	}
}

// renderMessage renders one transcript entry: label line, then body.
func (m *Model) renderMessage(msg *model.Message, width int) string {
	label := m.theme.UserLabel
	if msg.Role == model.RoleModel {
		label = m.theme.ModelLabel
	}
	header := label.Render(msg.Role.DisplayName()) + " " +
		m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
	if msg.Role == model.RoleModel && msg.Model != "" {
		header += " " + m.theme.Timestamp.Render("· "+msg.Model)
	}

	body := m.renderBody(msg, width)
	return header + "\n" + body
}

// renderBody formats a message's text for its current streaming state.
func (m *Model) renderBody(msg *model.Message, width int) string {
	if msg.IsError {
		return m.theme.ErrorText.Render(msg.Text)
	}
	if msg.Role == model.RoleUser {
		return m.theme.UserText.Render(msg.Text)
	}

	// Pending placeholder with nothing streamed yet.
	if msg.IsEmpty() && m.generating {
		return m.spinner.View() + " " + m.theme.Timestamp.Render("thinking...")
	}

	// While the reveal is chasing, the animator holds the streamed text;
	// the log's copy is only read once the message has settled.
	settled := m.animator.Settled(msg.ID)
	var raw string
	if settled {
		raw = msg.Text
	} else {
		raw = m.animator.Visible(msg.ID)
	}

	visible, thoughts := chat.SplitThoughts(raw)

	var parts []string
	for _, t := range thoughts {
		parts = append(parts, m.renderThought(t, width))
	}

	if settled {
		parts = append(parts, m.markdown.Render(visible, width))
	} else if visible != "" {
		parts = append(parts, m.theme.ModelText.Render(visible))
	}
	return strings.Join(parts, "\n")
}

// renderThought shows a reasoning segment dimmed, collapsed to a preview
// unless thought display is on.
func (m *Model) renderThought(t chat.Thought, width int) string {
	text := t.Text
	if !m.showThoughts {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[:idx] + " ..."
		}
	}
	prefix := "[thought] "
	if t.Open {
		prefix = "[thinking] "
	}
	return m.theme.Thought.Width(width).Render(prefix + text)
}

// =============================================================================
// CHROME
// =============================================================================

func (m *Model) renderHeader() string {
	sess := m.sessions.Active()
	idx := 1
	for i, s := range m.sessions.Sessions() {
		if s.ID == sess.ID {
			idx = i + 1
			break
		}
	}
	title := fmt.Sprintf("%s  (%d/%d)", sess.DisplayTitle(), idx, m.sessions.Count())
	return m.theme.Header.Width(m.width).Render(util.TruncateWidth(title, m.width-2))
}

func (m *Model) renderInput() string {
	return m.theme.InputFrame.Width(m.width - 2).Render(m.input.View())
}

func (m *Model) renderStatus() string {
	var left string
	switch {
	case m.notice != "":
		left = m.theme.Notice.Render(m.notice)
	case m.generating:
		elapsed := time.Since(m.genStart).Truncate(100 * time.Millisecond)
		left = fmt.Sprintf("%s generating %s (esc to stop)", m.spinner.View(), elapsed)
	case m.lastModel != "":
		left = m.lastModel
		if m.lastKeyIndex >= 0 {
			left += fmt.Sprintf(" · key %d", m.lastKeyIndex+1)
		}
	default:
		left = "ready"
	}

	right := m.theme.StatusKey.Render("ctrl+n") + " new  " +
		m.theme.StatusKey.Render("ctrl+o") + " next  " +
		m.theme.StatusKey.Render("ctrl+r") + " regen  " +
		m.theme.StatusKey.Render("ctrl+c") + " quit"

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(" " + left + strings.Repeat(" ", gap) + right)
}
