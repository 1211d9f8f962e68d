// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/provider"
)

// =============================================================================
// RECORD KEYS AND VERSIONS
// =============================================================================

const (
	keySessions      = "sessions"
	keyActiveSession = "active_session"
	keyCredentials   = "credentials"
	keySettings      = "settings"
)

const (
	sessionsVersion      = 1
	activeSessionVersion = 1
	credentialsVersion   = 1
	settingsVersion      = 2
)

// =============================================================================
// SESSIONS
// =============================================================================

// sessionsRecord is the stored session collection.
type sessionsRecord struct {
	Sessions []*model.Session `json:"sessions"`
}

// SaveSessions rewrites the whole session collection.
func (s *Store) SaveSessions(sessions []*model.Session) error {
	return s.saveRecord(keySessions, sessionsVersion, sessionsRecord{Sessions: sessions})
}

// LoadSessions returns the stored collection, or nil when none exists yet.
func (s *Store) LoadSessions() ([]*model.Session, error) {
	var rec sessionsRecord
	if err := s.loadRecord(keySessions, sessionsVersion, &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.Sessions, nil
}

// =============================================================================
// ACTIVE SESSION
// =============================================================================

type activeSessionRecord struct {
	ID string `json:"id"`
}

// SaveActiveSession stores which session is active.
func (s *Store) SaveActiveSession(id string) error {
	return s.saveRecord(keyActiveSession, activeSessionVersion, activeSessionRecord{ID: id})
}

// LoadActiveSession returns the stored active-session ID, or empty when none
// exists yet.
func (s *Store) LoadActiveSession() (string, error) {
	var rec activeSessionRecord
	if err := s.loadRecord(keyActiveSession, activeSessionVersion, &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.ID, nil
}

// =============================================================================
// CREDENTIALS
// =============================================================================

type credentialsRecord struct {
	Credentials []provider.Credential `json:"credentials"`
}

// SaveCredentials rewrites the credential pool.
func (s *Store) SaveCredentials(creds []provider.Credential) error {
	return s.saveRecord(keyCredentials, credentialsVersion, credentialsRecord{Credentials: creds})
}

// LoadCredentials returns the stored pool, or nil when none exists yet.
func (s *Store) LoadCredentials() ([]provider.Credential, error) {
	var rec credentialsRecord
	if err := s.loadRecord(keyCredentials, credentialsVersion, &rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec.Credentials, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the runtime-adjustable state persisted across restarts.
// Version 2 added StickyLines.
type Settings struct {
	Params           provider.Params `json:"params"`
	AnimationEnabled bool            `json:"animation_enabled"`
	StickyLines      int             `json:"sticky_lines"`
	Instruction      string          `json:"instruction,omitempty"`
}

// DefaultSettings returns the settings used before anything was persisted,
// and the defaults for fields missing from older record versions.
func DefaultSettings() Settings {
	return Settings{
		Params: provider.Params{
			Temperature: 0.7,
			TopP:        0.95,
			MaxTokens:   4096,
			Stream:      true,
		},
		AnimationEnabled: true,
		StickyLines:      2,
	}
}

// SaveSettings rewrites the settings record.
func (s *Store) SaveSettings(settings Settings) error {
	return s.saveRecord(keySettings, settingsVersion, settings)
}

// LoadSettings returns the stored settings. Missing records and fields fall
// back to defaults.
func (s *Store) LoadSettings() (Settings, error) {
	settings := DefaultSettings()
	if err := s.loadRecord(keySettings, settingsVersion, &settings); err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), err
	}
	if settings.StickyLines <= 0 {
		settings.StickyLines = DefaultSettings().StickyLines
	}
	return settings, nil
}
