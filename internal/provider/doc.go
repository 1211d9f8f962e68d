// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the pluggable LLM backend clients and the
// credential pool that dispatches requests to them.
//
// Two backend kinds are supported: Google-style APIs (streamGenerateContent
// over SSE) and OpenAI-compatible APIs (chat/completions with delta chunks).
// Both are exposed through the same Client interface, which streams
// cumulative text to a callback and returns an authoritative final Result.
//
// # Key Types
//
//   - Client: the backend interface (StreamChat, TestConnection, ListModels)
//   - Credential: one pool entry (key, kind, usage limit, rate-limit state)
//   - Pool: credential rotation; picks the next usable credential atomically
//     with dispatch
//   - Request / Result: the transient per-generation request and its outcome
//
// Cancellation surfaces as an error satisfying errors.Is(err, ErrAborted),
// after which the chunk callback is never invoked again. This keeps
// user-initiated aborts distinguishable from genuine failures.
package provider
