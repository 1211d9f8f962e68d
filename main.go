// streamchat - a terminal client for streaming LLM chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/streamchat/internal/config"
	"github.com/jeranaias/streamchat/internal/provider"
	"github.com/jeranaias/streamchat/internal/storage"
	chatui "github.com/jeranaias/streamchat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "streamchat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("streamchat %s (%s)\n", Version, GitCommit)
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("stdout is not a terminal")
	}

	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	statePath, err := cfg.StatePath()
	if err != nil {
		return err
	}
	store, err := storage.Open(statePath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer store.Close()

	// The persisted credential pool wins; the config file seeds it on first
	// run and whenever the store holds none.
	creds, err := store.LoadCredentials()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if len(creds) == 0 && len(cfg.Credentials) > 0 {
		creds = cfg.Credentials
		if err := store.SaveCredentials(creds); err != nil {
			return fmt.Errorf("failed to seed credentials: %w", err)
		}
	}
	pool := provider.NewPool(creds)

	settings, err := store.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	// Config-file knobs override persisted defaults at startup.
	settings.Params = cfg.Generation.Params()
	settings.Instruction = cfg.Generation.Instruction
	settings.AnimationEnabled = cfg.UI.AnimationEnabled
	if cfg.UI.StickyLines > 0 {
		settings.StickyLines = cfg.UI.StickyLines
	}

	m := chatui.New(chatui.Deps{
		Store:           store,
		Pool:            pool,
		Settings:        settings,
		MarkdownEnabled: cfg.UI.MarkdownEnabled,
		ShowThoughts:    cfg.UI.ShowThoughts,
	})

	watcher, err := config.NewWatcher(cfgPath, m.ApplyConfig)
	if err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run program: %w", err)
	}
	return nil
}
