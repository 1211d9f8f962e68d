// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/provider"
)

// fakeBackend scripts one StreamChat call and records every request.
type fakeBackend struct {
	mu       sync.Mutex
	requests []provider.Request
	usable   bool
	script   func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error)
}

func (f *fakeBackend) StreamChat(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.script(ctx, req, onChunk)
}

func (f *fakeBackend) HasUsable() bool { return f.usable }

func (f *fakeBackend) recorded() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// waitIdle polls until the channel settles or the deadline hits.
func waitIdle(t *testing.T, c *Channel) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.IsActive() {
		if time.Now().After(deadline) {
			t.Fatal("channel did not settle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChannelStreamsCumulativeAndFinalizes(t *testing.T) {
	backend := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			onChunk("Hel")
			onChunk("Hello")
			// The resolved text is authoritative and differs from the
			// last chunk.
			return &provider.Result{Text: "Hello there", Model: "m1", KeyIndex: 3, FinishReason: "stop"}, nil
		},
	}

	sess := model.NewSession()
	var updates []string
	done := make(chan string, 1)
	ch := NewChannel()
	id := ch.Start(sess, backend, provider.Request{Prompt: "hi"}, Events{
		OnUpdate: func(msgID, cum string) { updates = append(updates, cum) },
		OnDone:   func(msgID string, res *provider.Result) { done <- msgID },
	})

	select {
	case got := <-done:
		if got != id {
			t.Errorf("done ID = %s, want placeholder %s", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not complete")
	}
	waitIdle(t, ch)

	if len(updates) != 2 || updates[0] != "Hel" || updates[1] != "Hello" {
		t.Errorf("updates = %v", updates)
	}

	msg := sess.Get(id)
	if msg == nil {
		t.Fatal("placeholder missing from log")
	}
	if msg.Text != "Hello there" {
		t.Errorf("final text = %q", msg.Text)
	}
	if msg.Model != "m1" || msg.KeyIndex != 3 {
		t.Errorf("provenance = %q/%d", msg.Model, msg.KeyIndex)
	}
	if msg.ExecutionTime <= 0 {
		t.Error("elapsed time not recorded")
	}
}

func TestChannelCancelIsSilent(t *testing.T) {
	streamed := make(chan struct{})
	backend := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			onChunk("partial answer")
			close(streamed)
			<-ctx.Done()
			return nil, provider.ErrAborted
		},
	}

	sess := model.NewSession()
	failed := make(chan struct{}, 1)
	ch := NewChannel()
	id := ch.Start(sess, backend, provider.Request{Prompt: "hi"}, Events{
		OnFail: func(string, error) { failed <- struct{}{} },
	})

	<-streamed
	ch.Cancel()
	waitIdle(t, ch)

	select {
	case <-failed:
		t.Error("cancellation must not surface as a failure")
	default:
	}

	// Partial text stays, no error flag, message count unchanged.
	if sess.Len() != 1 {
		t.Fatalf("log length = %d, want 1", sess.Len())
	}
	msg := sess.Get(id)
	if msg.Text != "partial answer" {
		t.Errorf("partial text lost: %q", msg.Text)
	}
	if msg.IsError {
		t.Error("cancelled message must not be flagged as error")
	}
}

func TestChannelFailureReplacesPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			return nil, &provider.APIError{Status: 500, Kind: provider.KindOpenAI, Message: "backend exploded"}
		},
	}

	sess := model.NewSession()
	failed := make(chan string, 1)
	ch := NewChannel()
	id := ch.Start(sess, backend, provider.Request{Prompt: "hi"}, Events{
		OnFail: func(msgID string, err error) { failed <- msgID },
	})

	var errID string
	select {
	case errID = <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("failure event never fired")
	}
	waitIdle(t, ch)

	if sess.Get(id) != nil {
		t.Error("placeholder should be removed on failure")
	}
	errMsg := sess.Get(errID)
	if errMsg == nil || !errMsg.IsError {
		t.Fatal("expected an error replacement message")
	}
	if errMsg.Role != model.RoleModel {
		t.Errorf("error message role = %v", errMsg.Role)
	}
	if sess.Len() != 1 {
		t.Errorf("log length = %d, want 1", sess.Len())
	}
}

func TestChannelEmptyResultCompletesWithDiagnostic(t *testing.T) {
	backend := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			return &provider.Result{Text: "", FinishReason: "SAFETY"}, nil
		},
	}

	sess := model.NewSession()
	done := make(chan struct{}, 1)
	ch := NewChannel()
	id := ch.Start(sess, backend, provider.Request{Prompt: "hi"}, Events{
		OnDone: func(string, *provider.Result) { done <- struct{}{} },
		OnFail: func(string, error) { t.Error("empty result is a completion, not a failure") },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not complete")
	}
	waitIdle(t, ch)

	msg := sess.Get(id)
	if msg.Text != "[no content: SAFETY]" {
		t.Errorf("diagnostic text = %q", msg.Text)
	}
	if msg.IsError {
		t.Error("diagnostic completion must not be an error")
	}
}

func TestChannelSupersededStreamNeverWrites(t *testing.T) {
	release := make(chan struct{})
	staleDone := make(chan struct{})
	// Ignores cancellation until released, then tries to write anyway.
	stale := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			<-release
			onChunk("stale content")
			defer close(staleDone)
			return &provider.Result{Text: "stale final"}, nil
		},
	}
	fresh := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			onChunk("fresh")
			return &provider.Result{Text: "fresh"}, nil
		},
	}

	sess := model.NewSession()
	ch := NewChannel()
	staleID := ch.Start(sess, stale, provider.Request{Prompt: "one"}, Events{})

	done := make(chan struct{}, 1)
	freshID := ch.Start(sess, fresh, provider.Request{Prompt: "two"}, Events{
		OnDone: func(string, *provider.Result) { done <- struct{}{} },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fresh generation did not complete")
	}

	// Let the superseded stream finish and attempt its writes.
	close(release)
	<-staleDone
	time.Sleep(20 * time.Millisecond)

	if got := sess.Get(staleID).Text; got != "" {
		t.Errorf("superseded stream wrote %q after replacement started", got)
	}
	if got := sess.Get(freshID).Text; got != "fresh" {
		t.Errorf("fresh text = %q", got)
	}
	if ch.IsActive() {
		t.Error("channel should be idle; superseded settle must not flip state")
	}
}

func TestChannelRecordsClientElapsed(t *testing.T) {
	reported := 1234 * time.Millisecond
	backend := &fakeBackend{
		script: func(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error) {
			return &provider.Result{Text: "answer", Elapsed: reported}, nil
		},
	}

	sess := model.NewSession()
	done := make(chan struct{}, 1)
	ch := NewChannel()
	id := ch.Start(sess, backend, provider.Request{Prompt: "hi"}, Events{
		OnDone: func(string, *provider.Result) { done <- struct{}{} },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not complete")
	}

	msg := sess.Get(id)
	if msg == nil {
		t.Fatal("placeholder missing from log")
	}
	if msg.ExecutionTime != reported {
		t.Errorf("ExecutionTime = %v, want the client-reported %v", msg.ExecutionTime, reported)
	}
}
