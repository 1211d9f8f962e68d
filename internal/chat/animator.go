// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ANIMATION CONSTANTS
// =============================================================================

const (
	// FrameInterval is the animation tick period (30fps).
	FrameInterval = 33 * time.Millisecond

	// minStepRunes is the smallest per-frame advance while catching up.
	minStepRunes = 2

	// backlogDivisor scales the per-frame advance by outstanding backlog,
	// so any single jump converges within roughly backlogDivisor frames.
	backlogDivisor = 10

	// maxAnimatedBytes is the payload size above which animation is skipped
	// and the text revealed at once (256KB).
	maxAnimatedBytes = 256 * 1024
)

// =============================================================================
// ANIMATOR
// =============================================================================

// animState tracks one message's reveal progress. displayed counts runes of
// target already visible.
type animState struct {
	target    string
	targetLen int
	displayed int
}

// Animator paces the reveal of streamed text. Each animated message has a
// displayed cursor that chases a target cursor; Step advances every chasing
// cursor once per frame.
type Animator struct {
	mu      sync.Mutex
	states  map[string]*animState
	enabled bool
}

// NewAnimator creates an animator. When disabled, SetTarget reveals text
// immediately.
func NewAnimator(enabled bool) *Animator {
	return &Animator{
		states:  make(map[string]*animState),
		enabled: enabled,
	}
}

// SetEnabled toggles animation. Disabling snaps every cursor to its target.
func (a *Animator) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	if !enabled {
		for _, st := range a.states {
			st.displayed = st.targetLen
		}
	}
}

// SetTarget updates a message's target text. A shrinking target (edit,
// authoritative final replace shorter than the last chunk) snaps the
// displayed cursor; growth leaves it chasing. Binary payloads are revealed
// at once rather than animated.
func (a *Animator) SetTarget(id, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[id]
	if !ok {
		st = &animState{}
		a.states[id] = st
	}
	st.target = text
	st.targetLen = len([]rune(text))

	if !a.enabled || isBinaryPayload(text) {
		st.displayed = st.targetLen
		return
	}
	// Never animate backwards.
	if st.displayed > st.targetLen {
		st.displayed = st.targetLen
	}
}

// Reveal snaps a message's displayed cursor to its target (passthrough for
// edited or non-animated messages).
func (a *Animator) Reveal(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[id]; ok {
		st.displayed = st.targetLen
	}
}

// Step advances every chasing cursor by one frame's worth and reports
// whether anything moved. The advance grows with backlog so a large jump
// still converges in a bounded number of frames.
func (a *Animator) Step() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	moved := false
	for _, st := range a.states {
		backlog := st.targetLen - st.displayed
		if backlog <= 0 {
			continue
		}
		step := backlog / backlogDivisor
		if step < minStepRunes {
			step = minStepRunes
		}
		st.displayed += step
		if st.displayed > st.targetLen {
			st.displayed = st.targetLen
		}
		moved = true
	}
	return moved
}

// Visible returns the currently revealed prefix of a message's target text.
// Unknown IDs return the empty string.
func (a *Animator) Visible(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[id]
	if !ok {
		return ""
	}
	if st.displayed >= st.targetLen {
		return st.target
	}
	return string([]rune(st.target)[:st.displayed])
}

// Settled reports whether a message's reveal has caught up with its target.
// Unknown IDs are settled.
func (a *Animator) Settled(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[id]
	if !ok {
		return true
	}
	return st.displayed >= st.targetLen
}

// Animating reports whether any message is still chasing its target.
func (a *Animator) Animating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, st := range a.states {
		if st.displayed < st.targetLen {
			return true
		}
	}
	return false
}

// Remove drops a message's animation state.
func (a *Animator) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, id)
}

// Reset drops all animation state (session switch).
func (a *Animator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = make(map[string]*animState)
}

// isBinaryPayload reports content that should never be character-animated:
// base64 data URIs and oversized payloads.
func isBinaryPayload(text string) bool {
	if len(text) > maxAnimatedBytes {
		return true
	}
	if strings.HasPrefix(text, "data:") && strings.Contains(text[:min(len(text), 128)], ";base64,") {
		return true
	}
	return false
}

// =============================================================================
// THOUGHT SEGMENTS
// =============================================================================

const (
	thoughtOpen  = "<think>"
	thoughtClose = "</think>"
)

// Thought is a reasoning segment stripped from the visible answer and shown
// collapsed. Open marks a segment whose closing tag has not arrived yet.
type Thought struct {
	Text string
	Open bool
}

// SplitThoughts separates reasoning segments from the visible answer text.
// An unterminated trailing open tag yields an open thought holding the rest
// of the text.
func SplitThoughts(text string) (visible string, thoughts []Thought) {
	var sb strings.Builder
	for {
		start := strings.Index(text, thoughtOpen)
		if start < 0 {
			sb.WriteString(text)
			break
		}
		sb.WriteString(text[:start])
		rest := text[start+len(thoughtOpen):]
		end := strings.Index(rest, thoughtClose)
		if end < 0 {
			thoughts = append(thoughts, Thought{Text: strings.TrimSpace(rest), Open: true})
			break
		}
		thoughts = append(thoughts, Thought{Text: strings.TrimSpace(rest[:end])})
		text = rest[end+len(thoughtClose):]
	}
	return strings.TrimSpace(sb.String()), thoughts
}
