// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "sync"

// =============================================================================
// SCROLL CONTROLLER
// =============================================================================

// DefaultStickyLines is the follow threshold when the config carries none.
const DefaultStickyLines = 2

// ScrollController decides where the transcript viewport sits while content
// streams in. It owns one bit of user intent, userScrolledUp, recomputed on
// every scroll event: within stickyLines of the bottom counts as following.
//
// The viewport itself lives in the UI layer; this type only computes target
// offsets from the metrics the UI feeds it.
type ScrollController struct {
	mu             sync.Mutex
	stickyLines    int
	userScrolledUp bool
	lastCount      int
}

// NewScrollController creates a controller with the given follow threshold.
// Non-positive thresholds fall back to the default.
func NewScrollController(stickyLines int) *ScrollController {
	if stickyLines <= 0 {
		stickyLines = DefaultStickyLines
	}
	return &ScrollController{stickyLines: stickyLines}
}

// Following reports whether the viewport should track the bottom.
func (s *ScrollController) Following() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.userScrolledUp
}

// OnScroll recomputes user intent from a scroll event. offset is the first
// visible line; contentHeight and viewHeight are in lines.
func (s *ScrollController) OnScroll(offset, contentHeight, viewHeight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bottomGap := contentHeight - (offset + viewHeight)
	s.userScrolledUp = bottomGap > s.stickyLines
}

// OnGenerationStart resets follow intent and returns the offset that puts
// the new answer's first line at the top of the viewport.
func (s *ScrollController) OnGenerationStart(placeholderTopLine int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userScrolledUp = false
	if placeholderTopLine < 0 {
		return 0
	}
	return placeholderTopLine
}

// OnFrame returns the offset to apply this frame and whether to apply it.
// While following, the viewport pins to the bottom once streamed content
// has pushed past the threshold.
func (s *ScrollController) OnFrame(offset, contentHeight, viewHeight int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userScrolledUp {
		return offset, false
	}
	bottom := contentHeight - viewHeight
	if bottom < 0 {
		bottom = 0
	}
	if contentHeight-(offset+viewHeight) > s.stickyLines {
		return bottom, true
	}
	return offset, false
}

// OnCountChange resets follow intent when the number of messages changes
// (send, delete, error replacement, session switch).
func (s *ScrollController) OnCountChange(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if count != s.lastCount {
		s.lastCount = count
		s.userScrolledUp = false
	}
}

// OnGenerationEnd returns the final bottom offset and whether to apply it.
// A reader who scrolled away keeps their place.
func (s *ScrollController) OnGenerationEnd(contentHeight, viewHeight int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userScrolledUp {
		return 0, false
	}
	bottom := contentHeight - viewHeight
	if bottom < 0 {
		bottom = 0
	}
	return bottom, true
}
