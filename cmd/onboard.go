package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/heartbeat"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and workspace",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	var cfg *config.Config
	if _, err := os.Stat(cfgPath); err == nil {
		existing, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = existing
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s (existing values kept)\n", cfgPath)
	} else {
		def := config.DefaultConfig()
		cfg = &def
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	createWorkspaceTemplates(workspace)

	fmt.Printf("\n%s companion is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add your API key and model to %s\n", cfgPath)
	fmt.Printf("  2. Chat: companion agent -m \"Hello!\"\n")
	fmt.Printf("  3. Background work: companion task add \"check whether the backups ran\"\n")
	return nil
}

var workspaceTemplates = map[string]string{
	"AGENTS.md": `# Agent Instructions

You are a friendly voice companion. Keep spoken replies short and natural.

## Guidelines

- Say what you're about to do before running code
- Ask for clarification when the request is ambiguous
- Long-running work belongs in a background objective (/task <objective>)
- Remember important information in memory/MEMORY.md; finished background work is logged in memory/HISTORY.md
`,
	"SOUL.md": `# Soul

I am companion, a voice assistant that keeps working while we talk.

## Personality

- Warm and conversational
- Brief when speaking, thorough when working

## Values

- Accuracy over speed
- User privacy and safety
- Transparency about background work
`,
	"USER.md": `# User

Information about the user goes here.

## Preferences

- Communication style: (casual/formal)
- Timezone: (your timezone)
- Language: (your preferred language)
`,
	heartbeat.FileName: `# Heartbeat

Unchecked items below are picked up as background objectives every heartbeat.
Check an item off to pause it.

<!-- Example:
- [ ] Check whether the nightly backup finished and tell me if it failed
-->
`,
	filepath.Join("objectives", "disk-space.md"): `---
name: disk-space
description: Warn when the home partition is almost full
fingerprint: disk-space
schedule: "0 9 * * *"
requires:
  bins: [df]
---
Check free space on the partition holding the home directory with df -h.
If less than 10% is free, say how much is left; otherwise report that space is fine.
`,
	filepath.Join("objectives", "go-release.md"): `---
name: go-release
description: Summarise the latest Go release notes
fingerprint: go-release
schedule: "0 10 * * 1"
pages:
  - https://go.dev/doc/devel/release
---
Read the release history page and tell me the newest Go version and its release date.
Mention any security fixes in one sentence.
`,
}

func createWorkspaceTemplates(workspace string) {
	for name, content := range workspaceTemplates {
		p := filepath.Join(workspace, name)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			_ = os.MkdirAll(filepath.Dir(p), 0o755)
			_ = os.WriteFile(p, []byte(content), 0o644)
			fmt.Printf("  Created %s\n", name)
		}
	}

	memDir := filepath.Join(workspace, "memory")
	_ = os.MkdirAll(memDir, 0o755)

	memFile := filepath.Join(memDir, "MEMORY.md")
	if _, err := os.Stat(memFile); os.IsNotExist(err) {
		_ = os.WriteFile(memFile, []byte(`# Long-term Memory

This file stores important information that should persist across sessions.

## User Information

(Important facts about the user)

## Preferences

(User preferences learned over time)
`), 0o644)
		fmt.Println("  Created memory/MEMORY.md")
	}

	histFile := filepath.Join(memDir, "HISTORY.md")
	if _, err := os.Stat(histFile); os.IsNotExist(err) {
		_ = os.WriteFile(histFile, []byte(""), 0o644)
		fmt.Println("  Created memory/HISTORY.md")
	}
}
