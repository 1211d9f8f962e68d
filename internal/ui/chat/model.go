// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/streamchat/internal/chat"
	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/provider"
	"github.com/jeranaias/streamchat/internal/session"
	"github.com/jeranaias/streamchat/internal/storage"
	"github.com/jeranaias/streamchat/internal/ui/render"
	"github.com/jeranaias/streamchat/internal/ui/styles"
)

// =============================================================================
// EVENT INBOX
// =============================================================================

// eventInbox carries engine-goroutine events into the update loop. The frame
// tick drains it; the pointer is shared across Bubble Tea's model copies.
type eventInbox struct {
	mu     sync.Mutex
	events []tea.Msg
}

func (in *eventInbox) push(msg tea.Msg) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events = append(in.events, msg)
}

func (in *eventInbox) drain() []tea.Msg {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.events
	in.events = nil
	return out
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Styling
	theme    *styles.Theme
	markdown *render.Markdown

	// Dimensions
	width  int
	height int
	ready  bool

	// Engine (all pointers; shared across model copies)
	sessions   *session.Manager
	controller *chat.Controller
	animator   *chat.Animator
	scroll     *chat.ScrollController
	store      *storage.Store
	pool       *provider.Pool
	settings   storage.Settings
	inbox      *eventInbox

	// Display knobs from the config file
	showThoughts bool

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Key bindings
	keys KeyMap

	// Status
	generating   bool
	genStart     time.Time
	lastModel    string
	lastKeyIndex int
	notice       string

	// Pending viewport actions resolved at render time
	snapTopMsgID string
	finalSnap    bool
}

// Deps bundles everything the chat view needs.
type Deps struct {
	Store    *storage.Store
	Pool     *provider.Pool
	Settings storage.Settings

	// Display knobs from the config file
	MarkdownEnabled bool
	ShowThoughts    bool
}

// New creates the chat view and wires the engine together.
func New(deps Deps) *Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := &Model{
		theme:        theme,
		markdown:     render.NewMarkdown(deps.MarkdownEnabled, theme.IsDark),
		animator:     chat.NewAnimator(deps.Settings.AnimationEnabled),
		scroll:       chat.NewScrollController(deps.Settings.StickyLines),
		store:        deps.Store,
		pool:         deps.Pool,
		settings:     deps.Settings,
		inbox:        &eventInbox{},
		showThoughts: deps.ShowThoughts,
		input:        input,
		spinner:      sp,
		keys:         DefaultKeyMap(),
		lastKeyIndex: -1,
	}

	m.controller = chat.NewController(
		deps.Pool,
		m.animator,
		deps.Settings.Params,
		deps.Settings.Instruction,
		m.persist,
		chat.Events{
			OnDone: func(msgID string, res *provider.Result) {
				m.inbox.push(GenerationDoneMsg{MessageID: msgID, Model: res.Model, KeyIndex: res.KeyIndex})
			},
			OnFail: func(msgID string, err error) {
				m.inbox.push(GenerationFailedMsg{MessageID: msgID, Err: err})
			},
		},
	)

	m.sessions = session.NewManager(func() {
		// Leaving a session aborts its generation and clears pending input.
		m.controller.Cancel()
		m.animator.Reset()
		m.input.SetValue("")
	})

	m.loadPersisted()
	return m
}

// loadPersisted restores sessions and the active ID from the store.
func (m *Model) loadPersisted() {
	if m.store == nil {
		return
	}
	sessions, err := m.store.LoadSessions()
	if err != nil {
		m.notice = "Saved sessions could not be loaded; starting fresh"
		return
	}
	activeID, _ := m.store.LoadActiveSession()
	if len(sessions) > 0 {
		m.sessions.Load(sessions, activeID)
	}
}

// persist is the write-through hook: the whole collection and the active ID
// are rewritten after every mutation. It serializes a deep snapshot, never
// the live sessions; a stream still delivering chunks must not race the
// marshal.
func (m *Model) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSessions(m.sessions.Snapshot()); err != nil {
		m.inbox.push(NoticeMsg{Text: "Saving failed: " + err.Error()})
		return
	}
	if err := m.store.SaveActiveSession(m.sessions.ActiveID()); err != nil {
		m.inbox.push(NoticeMsg{Text: "Saving failed: " + err.Error()})
	}
}

// ApplyConfig queues a live-reloaded configuration. Safe to call from the
// watcher goroutine; the changes land on the next frame.
func (m *Model) ApplyConfig(cfg *config.Config) {
	m.inbox.push(ConfigReloadedMsg{Config: cfg})
}

// Init starts the frame tick and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(frameTick(), m.spinner.Tick, textinput.Blink)
}

// frameTick schedules the next animation frame.
func frameTick() tea.Cmd {
	return tea.Tick(chat.FrameInterval, func(t time.Time) tea.Msg {
		return FrameTickMsg(t)
	})
}

// notice schedules a transient status-line message.
func notice(text string) tea.Cmd {
	return func() tea.Msg { return NoticeMsg{Text: text} }
}

// expireNotice clears the notice after a few seconds.
func expireNotice() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{}
	})
}
