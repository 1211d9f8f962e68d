// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jeranaias/streamchat/internal/model"
)

func TestNewManagerStartsWithOneSession(t *testing.T) {
	m := NewManager(nil)
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}
	if m.Active() == nil {
		t.Fatal("active session must never be nil")
	}
}

func TestCreateActivatesAndCancels(t *testing.T) {
	cancels := 0
	m := NewManager(func() { cancels++ })
	first := m.Active()

	s := m.Create()
	if m.ActiveID() != s.ID {
		t.Error("create must activate the new session")
	}
	if m.Count() != 2 {
		t.Errorf("count = %d, want 2", m.Count())
	}
	if cancels != 1 {
		t.Errorf("deactivation hook fired %d times, want 1", cancels)
	}
	if m.Active().ID == first.ID {
		t.Error("active session did not change")
	}
}

func TestSelectNoOpOnActive(t *testing.T) {
	cancels := 0
	m := NewManager(func() { cancels++ })

	if err := m.Select(m.ActiveID()); err != nil {
		t.Fatal(err)
	}
	if cancels != 0 {
		t.Error("selecting the active session must not cancel anything")
	}

	if err := m.Select("sess_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown ID: err = %v", err)
	}
	if cancels != 0 {
		t.Error("failed select must not cancel anything")
	}
}

func TestSelectSwitches(t *testing.T) {
	cancels := 0
	m := NewManager(func() { cancels++ })
	first := m.Active()
	m.Create() // second, active; one cancel

	if err := m.Select(first.ID); err != nil {
		t.Fatal(err)
	}
	if m.ActiveID() != first.ID {
		t.Error("select did not switch")
	}
	if cancels != 2 {
		t.Errorf("cancels = %d, want 2", cancels)
	}
}

func TestDeleteActiveActivatesNext(t *testing.T) {
	m := NewManager(nil)
	first := m.Active()
	second := m.Create()
	third := m.Create()
	if err := m.Select(second.ID); err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(second.ID); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 2 {
		t.Fatalf("count = %d, want 2", m.Count())
	}
	// Next in order after the deleted slot.
	if m.ActiveID() != third.ID {
		t.Errorf("active = %s, want next session %s", m.ActiveID(), third.ID)
	}
	_ = first
}

func TestDeleteInactiveKeepsActive(t *testing.T) {
	m := NewManager(nil)
	first := m.Active()
	second := m.Create()

	if err := m.Delete(first.ID); err != nil {
		t.Fatal(err)
	}
	if m.ActiveID() != second.ID {
		t.Error("deleting an inactive session must not change the active one")
	}
}

func TestDeleteLastSessionCreatesFresh(t *testing.T) {
	m := NewManager(nil)
	only := m.Active()
	only.Append(model.NewUserMessage("hello"))

	if err := m.Delete(only.ID); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, collection must never settle empty", m.Count())
	}
	fresh := m.Active()
	if fresh.ID == only.ID {
		t.Error("replacement must be a new session")
	}
	if !fresh.IsEmpty() {
		t.Error("replacement must start empty")
	}
}

func TestDeleteUnknown(t *testing.T) {
	m := NewManager(nil)
	if err := m.Delete("sess_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestNextCycles(t *testing.T) {
	m := NewManager(nil)
	first := m.Active()
	second := m.Create()

	got := m.Next()
	if got.ID != first.ID {
		t.Errorf("next = %s, want wrap to %s", got.ID, first.ID)
	}
	if m.ActiveID() != first.ID {
		t.Error("next must activate the cycled session")
	}

	got = m.Next()
	if got.ID != second.ID {
		t.Error("next should cycle back")
	}
}

func TestLoadFallsBackToFresh(t *testing.T) {
	m := NewManager(nil)
	m.Load(nil, "whatever")
	if m.Count() != 1 || m.Active() == nil {
		t.Fatal("loading an empty collection must leave one fresh session")
	}

	a := model.NewSession()
	b := model.NewSession()
	m.Load([]*model.Session{a, b}, b.ID)
	if m.ActiveID() != b.ID {
		t.Error("persisted active ID should win")
	}

	m.Load([]*model.Session{a, b}, "sess_gone")
	if m.ActiveID() != a.ID {
		t.Error("unknown active ID should fall back to the first session")
	}
}

func TestSnapshotMarshalsWhileStreamRewritesText(t *testing.T) {
	m := NewManager(nil)
	sess := m.Active()
	sess.Append(model.NewUserMessage("question"))
	placeholder := model.NewPendingModelMessage()
	sess.Append(placeholder)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var text string
		for {
			select {
			case <-stop:
				return
			default:
			}
			text += "chunk "
			sess.SetText(placeholder.ID, text)
		}
	}()

	for i := 0; i < 200; i++ {
		if _, err := json.Marshal(m.Snapshot()); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	m := NewManager(nil)
	sess := m.Active()
	msg := model.NewUserMessage("original")
	sess.Append(msg)

	snap := m.Snapshot()
	sess.SetText(msg.ID, "rewritten")

	if len(snap) != 1 || snap[0].Len() != 1 {
		t.Fatalf("snapshot shape = %d sessions", len(snap))
	}
	if got := snap[0].History()[0].Text; got != "original" {
		t.Errorf("snapshot text = %q, want the value at snapshot time", got)
	}
	if snap[0] == sess {
		t.Error("snapshot must not alias the live session")
	}
}
