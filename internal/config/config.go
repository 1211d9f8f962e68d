// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for streamchat.
//
// Configuration is TOML at ~/.streamchat/config.toml with built-in defaults
// and validation. Instances are passed explicitly; there is no package-level
// global. A fsnotify-based watcher reloads generation parameters and UI
// knobs while the application runs.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/streamchat/internal/provider"
	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete streamchat configuration.
type Config struct {
	Version string `toml:"version"`

	Generation GenerationConfig `toml:"generation"`
	UI         UIConfig         `toml:"ui"`
	Storage    StorageConfig    `toml:"storage"`

	// Credentials seeded from the config file; the persisted pool takes
	// precedence once it exists.
	Credentials []provider.Credential `toml:"credentials"`
}

// GenerationConfig holds the default model parameters.
type GenerationConfig struct {
	Temperature float64 `toml:"temperature"`
	TopP        float64 `toml:"top_p"`
	TopK        int     `toml:"top_k"`
	MaxTokens   int     `toml:"max_tokens"`
	Instruction string  `toml:"instruction"`
}

// UIConfig holds rendering and viewport knobs.
type UIConfig struct {
	// AnimationEnabled toggles the paced reveal of streamed text.
	AnimationEnabled bool `toml:"animation_enabled"`
	// StickyLines is the follow threshold in lines from the bottom.
	StickyLines int `toml:"sticky_lines"`
	// MarkdownEnabled renders settled answers through the markdown engine.
	MarkdownEnabled bool `toml:"markdown_enabled"`
	// ShowThoughts expands reasoning segments instead of collapsing them.
	ShowThoughts bool `toml:"show_thoughts"`
}

// StorageConfig locates the persistence database.
type StorageConfig struct {
	// Path to the SQLite state database. Empty uses the default under the
	// config directory.
	Path string `toml:"path"`
}

// Params converts the generation section into dispatch parameters.
func (g GenerationConfig) Params() provider.Params {
	return provider.Params{
		Temperature: g.Temperature,
		TopP:        g.TopP,
		TopK:        g.TopK,
		MaxTokens:   g.MaxTokens,
		Stream:      true,
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Generation: GenerationConfig{
			Temperature: 0.7,
			TopP:        0.95,
			MaxTokens:   4096,
		},
		UI: UIConfig{
			AnimationEnabled: true,
			StickyLines:      2,
			MarkdownEnabled:  true,
		},
	}
}

// Dir returns the configuration directory (~/.streamchat).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".streamchat"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// StatePath resolves the SQLite database location.
func (c *Config) StatePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config at path, layering it over defaults. A missing file
// returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config atomically.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// Validate checks ranges and clamps nothing; invalid config is an error.
func (c *Config) Validate() error {
	g := c.Generation
	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("generation.temperature %v out of range [0, 2]", g.Temperature)
	}
	if g.TopP < 0 || g.TopP > 1 {
		return fmt.Errorf("generation.top_p %v out of range [0, 1]", g.TopP)
	}
	if g.TopK < 0 {
		return fmt.Errorf("generation.top_k must not be negative")
	}
	if g.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must not be negative")
	}
	if c.UI.StickyLines < 0 {
		return fmt.Errorf("ui.sticky_lines must not be negative")
	}
	for i, cred := range c.Credentials {
		if !cred.Kind.Valid() {
			return fmt.Errorf("credentials[%d]: unknown kind %q", i, cred.Kind)
		}
		if cred.Key == "" {
			return fmt.Errorf("credentials[%d]: key is empty", i)
		}
	}
	return nil
}
