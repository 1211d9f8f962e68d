// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/streamchat/internal/provider"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Generation.Temperature != def.Generation.Temperature {
		t.Errorf("temperature = %v", cfg.Generation.Temperature)
	}
	if !cfg.UI.AnimationEnabled || cfg.UI.StickyLines != 2 {
		t.Errorf("UI defaults = %+v", cfg.UI)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[generation]
temperature = 0.2
top_p = 0.9
max_tokens = 2048

[ui]
sticky_lines = 5

[[credentials]]
id = "main"
key = "sk-test"
kind = "openai"
is_active = true
usage_limit = 10
model = "gpt-4o"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Temperature != 0.2 || cfg.Generation.MaxTokens != 2048 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.UI.StickyLines != 5 {
		t.Errorf("sticky_lines = %d", cfg.UI.StickyLines)
	}
	// Untouched sections keep defaults.
	if !cfg.UI.AnimationEnabled {
		t.Error("animation default lost")
	}
	if len(cfg.Credentials) != 1 {
		t.Fatalf("credentials = %d", len(cfg.Credentials))
	}
	cred := cfg.Credentials[0]
	if cred.Kind != provider.KindOpenAI || cred.UsageLimit != 10 || cred.Model != "gpt-4o" {
		t.Errorf("credential = %+v", cred)
	}

	p := cfg.Generation.Params()
	if p.Temperature != 0.2 || !p.Stream {
		t.Errorf("params = %+v", p)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Generation.Temperature = 3 },
		func(c *Config) { c.Generation.TopP = 1.5 },
		func(c *Config) { c.Generation.TopK = -1 },
		func(c *Config) { c.UI.StickyLines = -2 },
		func(c *Config) {
			c.Credentials = []provider.Credential{{ID: "x", Key: "k", Kind: "telegraph"}}
		},
		func(c *Config) {
			c.Credentials = []provider.Credential{{ID: "x", Kind: provider.KindGemini}}
		},
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Generation.Temperature = 1.3
	cfg.UI.ShowThoughts = true

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Generation.Temperature != 1.3 || !loaded.UI.ShowThoughts {
		t.Errorf("round trip lost data: %+v", loaded)
	}
}

func TestLoadParseFailureKeepsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("not [valid toml"), 0600)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Generation.Temperature = 0.1
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloaded:
		if got.Generation.Temperature != 0.1 {
			t.Errorf("reloaded temperature = %v", got.Generation.Temperature)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("broken ["), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
		t.Error("callback must not fire for an invalid config")
	case <-time.After(700 * time.Millisecond):
	}
}
