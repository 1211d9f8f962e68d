// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CREDENTIAL POOL
// =============================================================================

// perKeyRate paces dispatches per credential (requests per second burst 1).
const perKeyRate = rate.Limit(1.0)

// Pool rotates dispatch across the usable credentials. A credential is
// usable when it is active and not flagged rate-limited. Rotation advances
// after UsageLimit consecutive uses of the same credential.
//
// Counter updates happen atomically with selection under the pool lock, so
// two generations can never both claim the "last use before rotation" slot.
type Pool struct {
	mu          sync.Mutex
	creds       []Credential
	current     int
	consecutive int
	limiters    map[string]*rate.Limiter
}

// NewPool creates a pool over the given credentials.
func NewPool(creds []Credential) *Pool {
	p := &Pool{
		limiters: make(map[string]*rate.Limiter),
	}
	p.SetCredentials(creds)
	return p
}

// SetCredentials replaces the pool contents, preserving limiter state for
// credentials that survive the swap.
func (p *Pool) SetCredentials(creds []Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = make([]Credential, len(creds))
	copy(p.creds, creds)
	if p.current >= len(p.creds) {
		p.current = 0
	}
	p.consecutive = 0

	kept := make(map[string]*rate.Limiter, len(creds))
	for _, c := range creds {
		if lim, ok := p.limiters[c.ID]; ok {
			kept[c.ID] = lim
		} else {
			kept[c.ID] = rate.NewLimiter(perKeyRate, 1)
		}
	}
	p.limiters = kept
}

// Credentials returns a snapshot of the pool contents.
func (p *Pool) Credentials() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Credential, len(p.creds))
	copy(out, p.creds)
	return out
}

// HasUsable reports whether at least one credential can be dispatched to.
func (p *Pool) HasUsable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.usable(i) {
			return true
		}
	}
	return false
}

// usable reports dispatch eligibility. Caller holds the lock.
func (p *Pool) usable(i int) bool {
	c := &p.creds[i]
	return c.IsActive && !c.IsRateLimited && c.Key != ""
}

// acquire picks the credential for the next dispatch and updates usage
// counters in the same critical section. Returns the credential, its pool
// index, and its limiter.
func (p *Pool) acquire() (Credential, int, *rate.Limiter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return Credential{}, -1, nil, ErrNoCredentials
	}

	// Rotate away from the current credential once its consecutive-use
	// budget is spent.
	if p.current < len(p.creds) {
		cur := &p.creds[p.current]
		if cur.UsageLimit > 0 && p.consecutive >= cur.UsageLimit {
			p.advanceLocked()
		}
	}

	// Walk at most one full cycle looking for a usable credential.
	for tries := 0; tries < len(p.creds); tries++ {
		if p.usable(p.current) {
			cred := &p.creds[p.current]
			p.consecutive++
			cred.LastUsed = time.Now()
			lim := p.limiters[cred.ID]
			return *cred, p.current, lim, nil
		}
		p.advanceLocked()
	}
	return Credential{}, -1, nil, ErrNoCredentials
}

// advanceLocked moves to the next credential index. Caller holds the lock.
func (p *Pool) advanceLocked() {
	p.current = (p.current + 1) % len(p.creds)
	p.consecutive = 0
}

// MarkRateLimited flags a credential so rotation skips it.
func (p *Pool) MarkRateLimited(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= 0 && index < len(p.creds) {
		p.creds[index].IsRateLimited = true
	}
}

// ClearRateLimits resets the rate-limited flag on every credential.
func (p *Pool) ClearRateLimits() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		p.creds[i].IsRateLimited = false
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// StreamChat picks a credential, paces the dispatch, and streams through the
// matching backend client. A 429 from the backend flags the credential and
// surfaces the error unchanged; it does not retry on another key.
func (p *Pool) StreamChat(ctx context.Context, req Request, onChunk ChunkFunc) (*Result, error) {
	cred, index, lim, err := p.acquire()
	if err != nil {
		return nil, err
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, abortErr(err)
		}
	}

	client, err := ClientFor(cred.Kind)
	if err != nil {
		return nil, err
	}

	result, err := client.StreamChat(ctx, cred, req, onChunk)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			p.MarkRateLimited(index)
		}
		return nil, err
	}
	result.KeyIndex = index
	return result, nil
}

// =============================================================================
// CREDENTIAL MANAGEMENT
// =============================================================================

// findByID returns a snapshot of the credential with the given ID.
func (p *Pool) findByID(id string) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.ID == id {
			return c, nil
		}
	}
	return Credential{}, fmt.Errorf("credential %q not found", id)
}

// TestCredential runs a connection test against one credential's backend.
func (p *Pool) TestCredential(ctx context.Context, id string) error {
	cred, err := p.findByID(id)
	if err != nil {
		return err
	}
	client, err := ClientFor(cred.Kind)
	if err != nil {
		return err
	}
	return client.TestConnection(ctx, cred)
}

// ListModels lists the models one credential can access.
func (p *Pool) ListModels(ctx context.Context, id string) ([]string, error) {
	cred, err := p.findByID(id)
	if err != nil {
		return nil, err
	}
	client, err := ClientFor(cred.Kind)
	if err != nil {
		return nil, err
	}
	return client.ListModels(ctx, cred)
}
