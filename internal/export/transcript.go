// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export converts sessions to and from portable transcript files.
//
// The interchange payload is {title, date, messages}. Import validates shape
// before touching any session state: a payload whose messages field is
// missing or not an array is rejected with a format error the UI can show.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// TRANSCRIPT PAYLOAD
// =============================================================================

// Transcript is the portable conversation payload.
type Transcript struct {
	Title    string           `json:"title"`
	Date     time.Time        `json:"date"`
	Messages []TranscriptTurn `json:"messages"`
}

// TranscriptTurn is one exported message.
type TranscriptTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// FromSession builds a transcript from a session. Error turns and empty
// placeholders are skipped.
func FromSession(sess *model.Session) *Transcript {
	tr := &Transcript{
		Title: sess.DisplayTitle(),
		Date:  sess.CreatedAt,
	}
	for _, msg := range sess.History() {
		if msg.IsError || msg.IsEmpty() {
			continue
		}
		tr.Messages = append(tr.Messages, TranscriptTurn{
			Role:      msg.Role.String(),
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Model:     msg.Model,
		})
	}
	return tr
}

// ToSession converts an imported transcript into a fresh session.
func (tr *Transcript) ToSession() *model.Session {
	sess := model.NewSession()
	sess.SetTitle(tr.Title)
	for _, turn := range tr.Messages {
		role := model.RoleUser
		if turn.Role == model.RoleModel.String() || turn.Role == "assistant" {
			role = model.RoleModel
		}
		msg := model.NewMessage(role, turn.Text)
		if !turn.Timestamp.IsZero() {
			msg.Timestamp = turn.Timestamp
		}
		msg.Model = turn.Model
		sess.Append(msg)
	}
	return sess
}

// =============================================================================
// JSON
// =============================================================================

// MarshalJSONTranscript renders the payload as indented JSON.
func (tr *Transcript) MarshalJSONTranscript() ([]byte, error) {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// ParseTranscript validates and decodes a JSON transcript payload. The
// messages field must be present and must be an array.
func ParseTranscript(data []byte) (*Transcript, error) {
	// Shape check first, so a payload with messages set to a string or
	// object fails with a format error rather than a confusing decode one.
	var shape struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("invalid transcript format: %w", err)
	}
	if len(shape.Messages) == 0 {
		return nil, fmt.Errorf("invalid transcript format: messages field is missing")
	}
	trimmed := strings.TrimSpace(string(shape.Messages))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("invalid transcript format: messages is not an array")
	}

	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("invalid transcript format: %w", err)
	}
	return &tr, nil
}

// =============================================================================
// MARKDOWN
// =============================================================================

// MarshalMarkdown renders the transcript as a Markdown document with YAML
// frontmatter.
func (tr *Transcript) MarshalMarkdown() []byte {
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(tr.Title)))
	sb.WriteString(fmt.Sprintf("date: %s\n", tr.Date.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("messages: %d\n", len(tr.Messages)))
	sb.WriteString("generator: streamchat\n")
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", tr.Title))

	for _, turn := range tr.Messages {
		label := "You"
		if turn.Role == model.RoleModel.String() || turn.Role == "assistant" {
			label = "Model"
			if turn.Model != "" {
				label = turn.Model
			}
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", label))
		sb.WriteString(turn.Text)
		sb.WriteString("\n\n")
	}
	return []byte(sb.String())
}

// escapeYAML keeps titles on one frontmatter line.
func escapeYAML(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if strings.ContainsAny(s, ":#{}[]&*?|>'\"%@`") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// =============================================================================
// FILES
// =============================================================================

// WriteFile exports a session to path; the format follows the extension
// (".md" is Markdown, anything else JSON). The write is atomic.
func WriteFile(sess *model.Session, path string) error {
	tr := FromSession(sess)
	var data []byte
	if filepath.Ext(path) == ".md" {
		data = tr.MarshalMarkdown()
	} else {
		var err error
		data, err = tr.MarshalJSONTranscript()
		if err != nil {
			return err
		}
	}
	return util.AtomicWriteFile(path, data, 0644)
}

// ReadFile imports a JSON transcript from disk into a fresh session.
func ReadFile(path string) (*model.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	tr, err := ParseTranscript(data)
	if err != nil {
		return nil, err
	}
	return tr.ToSession(), nil
}
