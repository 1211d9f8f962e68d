// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists application state in a local SQLite key-value
// table.
//
// Four records exist, each an independent versioned JSON envelope: the
// session collection, the active-session ID, the credential pool, and the
// settings snapshot. Records load synchronously at boot and are rewritten
// whole on every mutation (write-through, last write wins, no transactions
// across records). A record whose stored version is older than the current
// one is upgraded in place: missing fields take their defaults and the
// record is rewritten at the current version.
package storage
