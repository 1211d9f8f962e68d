// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessageDefaults(t *testing.T) {
	msg := NewUserMessage("hello")
	if msg.ID == "" {
		t.Error("expected generated ID")
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("expected msg_ prefix, got %q", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Errorf("expected RoleUser, got %v", msg.Role)
	}
	if msg.KeyIndex != -1 {
		t.Errorf("expected KeyIndex -1 (unset), got %d", msg.KeyIndex)
	}
	if msg.IsError {
		t.Error("user message should not be an error")
	}
}

func TestPendingModelMessageIsEmpty(t *testing.T) {
	msg := NewPendingModelMessage()
	if msg.Role != RoleModel {
		t.Errorf("expected RoleModel, got %v", msg.Role)
	}
	if !msg.IsEmpty() {
		t.Error("pending message should start empty")
	}
}

func TestErrorMessage(t *testing.T) {
	msg := NewErrorMessage("backend unreachable")
	if !msg.IsError {
		t.Error("expected IsError")
	}
	if msg.Role != RoleModel {
		t.Errorf("expected RoleModel, got %v", msg.Role)
	}
	if msg.Text != "backend unreachable" {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestMessagePreview(t *testing.T) {
	msg := NewUserMessage("héllo wörld, this is a long message")
	got := msg.Preview(10)
	if len([]rune(got)) != 10 {
		t.Errorf("expected 10 runes, got %d (%q)", len([]rune(got)), got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}

	short := NewUserMessage("hi")
	if short.Preview(10) != "hi" {
		t.Errorf("short text should pass through, got %q", short.Preview(10))
	}
}

func TestSessionAppendOrder(t *testing.T) {
	s := NewSession()
	a := NewUserMessage("first")
	b := NewPendingModelMessage()
	c := NewUserMessage("second")
	s.Append(a)
	s.Append(b)
	s.Append(c)

	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(hist))
	}
	if hist[0].ID != a.ID || hist[1].ID != b.ID || hist[2].ID != c.ID {
		t.Error("insertion order not preserved")
	}
}

func TestSessionSetText(t *testing.T) {
	s := NewSession()
	msg := NewPendingModelMessage()
	s.Append(msg)

	if !s.SetText(msg.ID, "partial") {
		t.Fatal("SetText on present message should succeed")
	}
	if s.Get(msg.ID).Text != "partial" {
		t.Errorf("text not updated: %q", s.Get(msg.ID).Text)
	}
	if s.SetText("msg_missing", "x") {
		t.Error("SetText on absent message should fail")
	}
}

func TestSessionFinalize(t *testing.T) {
	s := NewSession()
	msg := NewPendingModelMessage()
	s.Append(msg)

	ok := s.Finalize(msg.ID, "final answer", "gemini-2.0-flash", 2, 1500*time.Millisecond)
	if !ok {
		t.Fatal("Finalize should succeed")
	}
	got := s.Get(msg.ID)
	if got.Text != "final answer" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Model != "gemini-2.0-flash" || got.KeyIndex != 2 {
		t.Errorf("provenance not attached: model=%q key=%d", got.Model, got.KeyIndex)
	}
	if got.ExecutionTime != 1500*time.Millisecond {
		t.Errorf("elapsed = %v", got.ExecutionTime)
	}
}

func TestSessionRemove(t *testing.T) {
	s := NewSession()
	a := NewUserMessage("a")
	b := NewUserMessage("b")
	c := NewUserMessage("c")
	s.Append(a)
	s.Append(b)
	s.Append(c)

	if !s.Remove(b.ID) {
		t.Fatal("Remove should succeed")
	}
	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	// No cascade: neighbours untouched.
	if hist[0].ID != a.ID || hist[1].ID != c.ID {
		t.Error("wrong messages survived removal")
	}
}

func TestSessionTruncateAfter(t *testing.T) {
	s := NewSession()
	u1 := NewUserMessage("q1")
	m1 := NewMessage(RoleModel, "a1")
	u2 := NewUserMessage("q2")
	m2 := NewMessage(RoleModel, "a2")
	for _, m := range []*Message{u1, m1, u2, m2} {
		s.Append(m)
	}

	if !s.TruncateAfter(u2.ID) {
		t.Fatal("TruncateAfter should succeed")
	}
	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 messages after truncation, got %d", len(hist))
	}
	if hist[2].ID != u2.ID {
		t.Error("target of truncation should be the last message kept")
	}
}

func TestSessionPrecedingUser(t *testing.T) {
	s := NewSession()
	u1 := NewUserMessage("q1")
	m1 := NewMessage(RoleModel, "a1")
	u2 := NewUserMessage("q2")
	m2 := NewMessage(RoleModel, "a2")
	for _, m := range []*Message{u1, m1, u2, m2} {
		s.Append(m)
	}

	if got := s.PrecedingUser(m2.ID); got == nil || got.ID != u2.ID {
		t.Error("expected nearest preceding user turn u2")
	}
	if got := s.PrecedingUser(m1.ID); got == nil || got.ID != u1.ID {
		t.Error("expected nearest preceding user turn u1")
	}
	if got := s.PrecedingUser(u1.ID); got != nil {
		t.Error("no user turn precedes the first message")
	}
	if got := s.PrecedingUser("msg_missing"); got != nil {
		t.Error("absent ID should yield nil")
	}
}

func TestSessionDisplayTitle(t *testing.T) {
	s := NewSession()
	if s.DisplayTitle() != "New chat" {
		t.Errorf("empty session title = %q", s.DisplayTitle())
	}

	s.Append(NewUserMessage("What is the capital of France?\nAnd Germany?"))
	got := s.DisplayTitle()
	if strings.Contains(got, "\n") {
		t.Errorf("derived title should be single-line: %q", got)
	}
	if !strings.HasPrefix(got, "What is the capital") {
		t.Errorf("derived title = %q", got)
	}

	s.SetTitle("Capitals")
	if s.DisplayTitle() != "Capitals" {
		t.Errorf("explicit title should win, got %q", s.DisplayTitle())
	}
}

func TestSessionTranscriptSkipsErrors(t *testing.T) {
	s := NewSession()
	s.Append(NewUserMessage("hi"))
	s.Append(NewErrorMessage("request failed"))
	s.Append(NewMessage(RoleModel, "hello"))

	tr := s.Transcript()
	if strings.Contains(tr, "request failed") {
		t.Error("transcript should skip error turns")
	}
	if !strings.Contains(tr, "You: hi") || !strings.Contains(tr, "Model: hello") {
		t.Errorf("transcript missing turns:\n%s", tr)
	}
}

func TestSessionClone(t *testing.T) {
	s := NewSession()
	msg := NewUserMessage("original")
	s.Append(msg)

	clone := s.Clone()
	clone.Messages[0].Text = "mutated"
	if s.Get(msg.ID).Text != "original" {
		t.Error("clone shares message storage with original")
	}
	if clone.ID != s.ID {
		t.Error("clone should keep the session ID")
	}
}
