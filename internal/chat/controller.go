// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/provider"
)

// =============================================================================
// CONTROLLER ERRORS
// =============================================================================

var (
	// ErrBlankPrompt rejects whitespace-only input before any network work.
	ErrBlankPrompt = errors.New("prompt is empty")

	// ErrBusy rejects a second generation while one is in flight.
	ErrBusy = errors.New("a response is already generating")

	// ErrNotFound reports an operation on a message that is not in the log.
	ErrNotFound = errors.New("message not found")
)

// summarizeTimeout bounds the side-channel title generation.
const summarizeTimeout = 30 * time.Second

// summarizeInstruction is the synthesized system instruction for titles.
const summarizeInstruction = "Summarize the following conversation in at most six words. Reply with the title only, no quotes, no punctuation at the end."

// =============================================================================
// CONTROLLER
// =============================================================================

// Dispatcher is the credential-pool surface the controller needs: dispatch
// plus the usable-credential precondition. Satisfied by *provider.Pool.
type Dispatcher interface {
	Streamer
	HasUsable() bool
}

// Controller implements the conversation operations over a session log,
// dispatching generations through the response channel. It owns the shared
// animator so streamed updates become reveal targets.
type Controller struct {
	channel  *Channel
	pool     Dispatcher
	animator *Animator

	params      provider.Params
	instruction string

	// persist is the write-through hook, called after every log mutation.
	persist func()
	// events is forwarded to the channel on every dispatch.
	events Events
}

// NewController wires the conversation operations together. persist may be
// nil; events fields may be nil.
func NewController(pool Dispatcher, animator *Animator, params provider.Params, instruction string, persist func(), events Events) *Controller {
	c := &Controller{
		channel:     NewChannel(),
		pool:        pool,
		animator:    animator,
		params:      params,
		instruction: instruction,
		persist:     persist,
	}
	c.events = c.wrapEvents(events)
	return c
}

// wrapEvents layers animator updates and persistence onto caller events.
func (c *Controller) wrapEvents(ev Events) Events {
	return Events{
		OnUpdate: func(msgID, cumulative string) {
			c.animator.SetTarget(msgID, cumulative)
			if ev.OnUpdate != nil {
				ev.OnUpdate(msgID, cumulative)
			}
		},
		OnDone: func(msgID string, res *provider.Result) {
			// The final replace may differ from the last chunk.
			c.animator.SetTarget(msgID, res.Text)
			c.doPersist()
			if ev.OnDone != nil {
				ev.OnDone(msgID, res)
			}
		},
		OnFail: func(msgID string, err error) {
			c.animator.Reveal(msgID)
			c.doPersist()
			if ev.OnFail != nil {
				ev.OnFail(msgID, err)
			}
		},
	}
}

func (c *Controller) doPersist() {
	if c.persist != nil {
		c.persist()
	}
}

// SetParams updates the generation parameters for future dispatches.
func (c *Controller) SetParams(p provider.Params) {
	c.params = p
}

// SetInstruction updates the system instruction for future dispatches.
func (c *Controller) SetInstruction(instruction string) {
	c.instruction = instruction
}

// IsGenerating reports whether a generation is in flight.
func (c *Controller) IsGenerating() bool {
	return c.channel.IsActive()
}

// Cancel silently aborts the in-flight generation, if any.
func (c *Controller) Cancel() {
	c.channel.Cancel()
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// Send validates, appends the USER turn, and dispatches a generation. The
// history snapshot handed to the backend is taken before the append, so the
// prompt never also appears as the final history element.
func (c *Controller) Send(sess *model.Session, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrBlankPrompt
	}
	if c.channel.IsActive() {
		return ErrBusy
	}
	if !c.pool.HasUsable() {
		return provider.ErrNoCredentials
	}

	history := historyTurns(sess.History())
	sess.Append(model.NewUserMessage(text))
	c.doPersist()

	c.dispatch(sess, history, text)
	return nil
}

// Edit rewrites one message's text in place. No regeneration happens and no
// later messages are touched.
func (c *Controller) Edit(sess *model.Session, id, newText string) error {
	if !sess.SetText(id, newText) {
		return ErrNotFound
	}
	// Edited text is shown immediately, never re-animated.
	c.animator.SetTarget(id, newText)
	c.animator.Reveal(id)
	c.doPersist()
	return nil
}

// Delete removes one message. Neighbours are untouched; deleting a USER turn
// does not cascade to its answer. The placeholder being streamed into cannot
// be deleted.
func (c *Controller) Delete(sess *model.Session, id string) error {
	if c.channel.IsActive() {
		return ErrBusy
	}
	if !sess.Remove(id) {
		return ErrNotFound
	}
	c.animator.Remove(id)
	c.doPersist()
	return nil
}

// Regenerate replays from a message. A USER target truncates the log to and
// including it and resends its text. A MODEL target walks back to the
// nearest preceding USER turn; a MODEL turn with no preceding USER turn is
// an orphan and is deleted instead. Truncation is destructive.
func (c *Controller) Regenerate(sess *model.Session, id string) error {
	target := sess.Get(id)
	if target == nil {
		return ErrNotFound
	}

	userTurn := target
	if target.Role == model.RoleModel {
		userTurn = sess.PrecedingUser(id)
		if userTurn == nil {
			sess.Remove(id)
			c.animator.Remove(id)
			c.doPersist()
			return nil
		}
	}

	if !c.pool.HasUsable() {
		return provider.ErrNoCredentials
	}

	c.channel.Cancel()
	sess.TruncateAfter(userTurn.ID)
	c.doPersist()

	// History excludes the replayed USER turn itself; its text is the prompt.
	hist := sess.History()
	history := historyTurns(hist[:len(hist)-1])
	c.dispatch(sess, history, userTurn.Text)
	return nil
}

// Summarize generates a session title on a side channel: empty history, a
// synthesized instruction, and the transcript as the prompt. It renders no
// bubble and does not count as the active generation.
func (c *Controller) Summarize(sess *model.Session, done func(title string, err error)) error {
	if !c.pool.HasUsable() {
		return provider.ErrNoCredentials
	}
	transcript := sess.Transcript()
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("nothing to summarize")
	}

	req := provider.Request{
		Prompt:      transcript,
		Instruction: summarizeInstruction,
		Params:      c.params,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), summarizeTimeout)
		defer cancel()

		res, err := c.pool.StreamChat(ctx, req, func(string) {})
		if err != nil {
			if done != nil {
				done("", err)
			}
			return
		}
		title := strings.TrimSpace(res.Text)
		if title != "" {
			sess.SetTitle(title)
			c.doPersist()
		}
		if done != nil {
			done(title, nil)
		}
	}()
	return nil
}

// dispatch starts a generation and registers its placeholder with the
// animator.
func (c *Controller) dispatch(sess *model.Session, history []provider.Turn, prompt string) {
	req := provider.Request{
		History:     history,
		Prompt:      prompt,
		Instruction: c.instruction,
		Params:      c.params,
	}
	id := c.channel.Start(sess, c.pool, req, c.events)
	c.animator.SetTarget(id, "")
}

// historyTurns converts log messages into wire turns, skipping error
// messages and empty placeholders.
func historyTurns(msgs []*model.Message) []provider.Turn {
	turns := make([]provider.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.IsError || m.IsEmpty() {
			continue
		}
		turns = append(turns, provider.Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}
