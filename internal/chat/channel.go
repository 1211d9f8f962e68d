// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/provider"
)

// =============================================================================
// STREAMER
// =============================================================================

// Streamer dispatches one generation. Satisfied by *provider.Pool.
type Streamer interface {
	StreamChat(ctx context.Context, req provider.Request, onChunk provider.ChunkFunc) (*provider.Result, error)
}

// =============================================================================
// CHANNEL EVENTS
// =============================================================================

// Events are invoked from the streaming goroutine, only while the firing
// generation is still current. All fields are optional.
type Events struct {
	// OnUpdate fires after each cumulative write to the placeholder.
	OnUpdate func(msgID, cumulative string)
	// OnDone fires after the final authoritative replace.
	OnDone func(msgID string, res *provider.Result)
	// OnFail fires after the placeholder was replaced by an error message.
	// msgID is the replacement's ID.
	OnFail func(msgID string, err error)
}

// =============================================================================
// RESPONSE CHANNEL
// =============================================================================

// Channel owns the single in-flight generation. Starting a new generation
// cancels the previous one first; a generation counter keeps a superseded
// stream from writing after its replacement has begun.
//
// The mutex-and-CancelFunc pair must stay behind a pointer; Channel is
// never copied.
type Channel struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	active     bool
}

// NewChannel creates an idle channel.
func NewChannel() *Channel {
	return &Channel{}
}

// IsActive reports whether a generation is in flight.
func (c *Channel) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Cancel aborts the in-flight generation, if any. The abort is silent:
// partial text stays in the log and no error message is appended.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Start cancels any active generation, appends the empty placeholder MODEL
// message to the session, and dispatches the request on its own goroutine.
// Returns the placeholder's ID.
func (c *Channel) Start(sess *model.Session, streamer Streamer, req provider.Request, ev Events) string {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true
	c.mu.Unlock()

	placeholder := model.NewPendingModelMessage()
	sess.Append(placeholder)

	go c.run(ctx, gen, sess, placeholder.ID, streamer, req, ev)
	return placeholder.ID
}

// current reports whether gen is still the live generation.
func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

// settle marks the generation finished if it is still current.
func (c *Channel) settle(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.active = false
	c.cancel = nil
	return true
}

// run streams one generation to completion. Every write is gated on the
// generation still being current, so a superseded stream never mutates the
// log after its replacement started.
func (c *Channel) run(ctx context.Context, gen uint64, sess *model.Session, placeholderID string, streamer Streamer, req provider.Request, ev Events) {
	start := time.Now()

	res, err := streamer.StreamChat(ctx, req, func(cumulative string) {
		if !c.current(gen) {
			return
		}
		sess.SetText(placeholderID, cumulative)
		if ev.OnUpdate != nil {
			ev.OnUpdate(placeholderID, cumulative)
		}
	})

	if !c.settle(gen) {
		return
	}

	if err != nil {
		if errors.Is(err, provider.ErrAborted) {
			// Silent stop. Whatever streamed in stays; no error flag.
			return
		}
		sess.Remove(placeholderID)
		errMsg := model.NewErrorMessage(failureReason(err))
		sess.Append(errMsg)
		if ev.OnFail != nil {
			ev.OnFail(errMsg.ID, err)
		}
		return
	}

	// The resolved final text is authoritative. An empty result completes
	// with a visible diagnostic rather than an error; it is not retried.
	text := res.Text
	if text == "" {
		reason := res.FinishReason
		if reason == "" {
			reason = "empty response"
		}
		text = fmt.Sprintf("[no content: %s]", reason)
	}
	// The client's own measurement covers just the network exchange; fall
	// back to wall time when a backend does not report one.
	elapsed := res.Elapsed
	if elapsed <= 0 {
		elapsed = time.Since(start)
	}
	sess.Finalize(placeholderID, text, res.Model, res.KeyIndex, elapsed)
	if ev.OnDone != nil {
		ev.OnDone(placeholderID, res)
	}
}

// failureReason renders an error for display in the transcript.
func failureReason(err error) string {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Sprintf("Request failed (%s, status %d): %s", apiErr.Kind, apiErr.Status, apiErr.Message)
	}
	var streamErr *provider.StreamError
	if errors.As(err, &streamErr) {
		return fmt.Sprintf("Stream interrupted: %v", streamErr.Err)
	}
	return fmt.Sprintf("Request failed: %v", err)
}
