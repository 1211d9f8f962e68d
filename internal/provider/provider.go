// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
)

// =============================================================================
// BACKEND KINDS
// =============================================================================

// Kind identifies a backend API dialect.
type Kind string

const (
	// KindGemini is the Google-style API (streamGenerateContent, SSE).
	KindGemini Kind = "gemini"

	// KindOpenAI is any OpenAI-compatible chat/completions API.
	KindOpenAI Kind = "openai"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the supported dialects.
func (k Kind) Valid() bool {
	return k == KindGemini || k == KindOpenAI
}

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is one entry in the user-supplied key pool.
type Credential struct {
	ID       string `json:"id" toml:"id"`
	Key      string `json:"key" toml:"key"`
	Kind     Kind   `json:"kind" toml:"kind"`
	IsActive bool   `json:"is_active" toml:"is_active"`

	// UsageLimit is the maximum consecutive uses before the pool rotates
	// to the next credential. Zero means no limit.
	UsageLimit int `json:"usage_limit" toml:"usage_limit"`

	// IsRateLimited marks a credential the backend has rejected with 429.
	// The pool skips it until the flag is cleared.
	IsRateLimited bool      `json:"is_rate_limited"`
	LastUsed      time.Time `json:"last_used"`

	// Model overrides the default model for this credential.
	Model string `json:"model,omitempty" toml:"model"`

	// BaseURL overrides the default endpoint (OpenAI-compatible proxies).
	BaseURL string `json:"base_url,omitempty" toml:"base_url"`
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Params holds the generation parameters passed through to the backend.
type Params struct {
	Temperature float64 `json:"temperature" toml:"temperature"`
	TopP        float64 `json:"top_p" toml:"top_p"`
	TopK        int     `json:"top_k" toml:"top_k"`
	MaxTokens   int     `json:"max_tokens" toml:"max_tokens"`
	Stream      bool    `json:"stream" toml:"stream"`
}

// Turn is one prior conversation turn in a history snapshot.
type Turn struct {
	Role model.Role
	Text string
}

// Request is the transient per-generation request. History excludes the
// prompt; the prompt travels as its own field and is appended by the client
// as the final turn of the wire payload.
type Request struct {
	History     []Turn
	Prompt      string
	Instruction string
	Params      Params
}

// Result is the authoritative outcome of a completed stream. Text may differ
// from the last cumulative chunk (backends resolve the final text
// separately).
type Result struct {
	Text         string
	KeyIndex     int
	Kind         Kind
	Model        string
	FinishReason string
	Elapsed      time.Duration
}

// ChunkFunc receives the cumulative text so far, not a delta.
type ChunkFunc func(cumulative string)

// =============================================================================
// CLIENT INTERFACE
// =============================================================================

// Client is one backend dialect. Implementations stream cumulative text to
// onChunk and return the final Result. After the returned error satisfies
// errors.Is(err, ErrAborted), onChunk is never called again.
type Client interface {
	StreamChat(ctx context.Context, cred Credential, req Request, onChunk ChunkFunc) (*Result, error)
	TestConnection(ctx context.Context, cred Credential) error
	ListModels(ctx context.Context, cred Credential) ([]string, error)
}

// ClientFor returns the client implementation for a backend kind.
func ClientFor(kind Kind) (Client, error) {
	switch kind {
	case KindGemini:
		return NewGeminiClient(), nil
	case KindOpenAI:
		return NewOpenAIClient(), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAborted indicates the user cancelled the generation. Not a failure.
	ErrAborted = errors.New("generation aborted")

	// ErrNoCredentials indicates the pool has no usable credential.
	ErrNoCredentials = errors.New("no active credentials")

	// ErrRateLimited indicates the backend returned 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthFailed indicates the credential was rejected.
	ErrAuthFailed = errors.New("authentication failed")
)

// APIError is a non-2xx response from a backend.
type APIError struct {
	Status  int
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d)", e.Kind, e.Status)
}

// Is maps status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

// StreamError wraps a mid-stream failure, preserving the cumulative text
// received before the connection broke.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// abortErr wraps a context cancellation so it satisfies ErrAborted while
// keeping the original cause in the chain.
func abortErr(cause error) error {
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

var (
	// sharedClient serves short-lived calls (connection tests, model lists).
	sharedClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: 30 * time.Second,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)
