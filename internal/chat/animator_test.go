// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"
)

func TestAnimatorConvergesInBoundedFrames(t *testing.T) {
	a := NewAnimator(true)
	target := strings.Repeat("x", 1000)
	a.SetTarget("m1", target)

	frames := 0
	prevLen := 0
	for !a.Settled("m1") {
		if !a.Step() {
			t.Fatal("Step reported no movement while unsettled")
		}
		frames++
		if frames > 200 {
			t.Fatal("animation did not converge within 200 frames")
		}

		vis := a.Visible("m1")
		// Every intermediate state is a prefix, strictly growing.
		if !strings.HasPrefix(target, vis) {
			t.Fatal("visible text is not a prefix of the target")
		}
		if len(vis) <= prevLen {
			t.Fatalf("visible length did not grow: %d -> %d", prevLen, len(vis))
		}
		prevLen = len(vis)
	}

	if a.Visible("m1") != target {
		t.Error("settled text differs from target")
	}
}

func TestAnimatorLargeBacklogAdvancesProportionally(t *testing.T) {
	a := NewAnimator(true)
	a.SetTarget("m1", strings.Repeat("x", 10000))

	a.Step()
	// backlog/divisor, well above the minimum step.
	if got := len(a.Visible("m1")); got != 1000 {
		t.Errorf("first step revealed %d runes, want 1000", got)
	}
}

func TestAnimatorSnapsWhenTargetShrinks(t *testing.T) {
	a := NewAnimator(true)
	a.SetTarget("m1", strings.Repeat("x", 100))
	for !a.Settled("m1") {
		a.Step()
	}

	// Authoritative final text shorter than the last chunk: never animate
	// backwards, snap at once.
	a.SetTarget("m1", "short")
	if !a.Settled("m1") {
		t.Error("shrinking target should settle immediately")
	}
	if a.Visible("m1") != "short" {
		t.Errorf("visible = %q", a.Visible("m1"))
	}
}

func TestAnimatorDisabledRevealsImmediately(t *testing.T) {
	a := NewAnimator(false)
	a.SetTarget("m1", "instant")
	if !a.Settled("m1") {
		t.Error("disabled animator should settle on SetTarget")
	}
	if a.Visible("m1") != "instant" {
		t.Errorf("visible = %q", a.Visible("m1"))
	}
}

func TestAnimatorBinaryPayloadPassthrough(t *testing.T) {
	a := NewAnimator(true)
	payload := "data:image/png;base64," + strings.Repeat("A", 500)
	a.SetTarget("m1", payload)
	if !a.Settled("m1") {
		t.Error("base64 data URI should bypass animation")
	}

	huge := strings.Repeat("y", maxAnimatedBytes+1)
	a.SetTarget("m2", huge)
	if !a.Settled("m2") {
		t.Error("oversized payload should bypass animation")
	}
}

func TestAnimatorRevealAndRemove(t *testing.T) {
	a := NewAnimator(true)
	a.SetTarget("m1", strings.Repeat("x", 100))
	a.Reveal("m1")
	if !a.Settled("m1") {
		t.Error("Reveal should snap to target")
	}

	a.Remove("m1")
	if a.Visible("m1") != "" {
		t.Error("removed state should yield empty visible text")
	}
	if !a.Settled("m1") {
		t.Error("unknown IDs count as settled")
	}
}

func TestSplitThoughtsClosed(t *testing.T) {
	visible, thoughts := SplitThoughts("before <think>reasoning here</think> after")
	if visible != "before  after" && visible != "before after" {
		t.Errorf("visible = %q", visible)
	}
	if len(thoughts) != 1 || thoughts[0].Text != "reasoning here" || thoughts[0].Open {
		t.Errorf("thoughts = %+v", thoughts)
	}
}

func TestSplitThoughtsUnterminated(t *testing.T) {
	visible, thoughts := SplitThoughts("answer so far <think>still thinking")
	if visible != "answer so far" {
		t.Errorf("visible = %q", visible)
	}
	if len(thoughts) != 1 || !thoughts[0].Open {
		t.Errorf("expected one open thought, got %+v", thoughts)
	}
	if thoughts[0].Text != "still thinking" {
		t.Errorf("thought text = %q", thoughts[0].Text)
	}
}

func TestSplitThoughtsMultiple(t *testing.T) {
	visible, thoughts := SplitThoughts("<think>a</think>one<think>b</think>two")
	if !strings.Contains(visible, "one") || !strings.Contains(visible, "two") {
		t.Errorf("visible = %q", visible)
	}
	if len(thoughts) != 2 || thoughts[0].Text != "a" || thoughts[1].Text != "b" {
		t.Errorf("thoughts = %+v", thoughts)
	}
}

func TestSplitThoughtsNone(t *testing.T) {
	visible, thoughts := SplitThoughts("plain answer")
	if visible != "plain answer" || len(thoughts) != 0 {
		t.Errorf("visible = %q, thoughts = %+v", visible, thoughts)
	}
}
