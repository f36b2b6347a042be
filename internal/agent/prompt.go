package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/crystaldolphin/companion/internal/tasks"
)

// bootstrapFiles lists workspace files loaded into the system prompt.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "IDENTITY.md"}

// PromptBuilder assembles system prompts for conversation turns and
// background tasks.
type PromptBuilder struct {
	workspace string
	base      string
	persona   tasks.Persona
	memory    *Memory
	now       func() time.Time
}

// NewPromptBuilder creates a PromptBuilder. base is the configured system
// prompt; memory may be nil.
func NewPromptBuilder(workspace, base string, persona tasks.Persona, memory *Memory) *PromptBuilder {
	return &PromptBuilder{
		workspace: workspace,
		base:      base,
		persona:   persona,
		memory:    memory,
		now:       time.Now,
	}
}

// Persona returns the persona used to fill instruction placeholders.
func (pb *PromptBuilder) Persona() tasks.Persona { return pb.persona }

// Conversation returns the system prompt for a conversation turn. A
// non-empty instruction block from the scheduler is appended with the
// persona substituted.
func (pb *PromptBuilder) Conversation(instructions string) string {
	parts := pb.common()
	if instructions != "" {
		parts = append(parts, pb.persona.Apply(instructions))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Task returns the system prompt for a background task working on objective.
func (pb *PromptBuilder) Task(objective string, steps, maxSteps int) string {
	parts := pb.common()
	parts = append(parts, fmt.Sprintf(`# Background Objective

You are working in the background while the conversation continues. Your objective:

%s

Use the execute tool to run shell or python code when it helps (step %d of at most %d).
When the objective is complete, reply with a short plain-text result for the user and do not call the tool.
Do not greet the user or ask follow-up questions.`, objective, steps, maxSteps))
	return strings.Join(parts, "\n\n---\n\n")
}

func (pb *PromptBuilder) common() []string {
	parts := []string{pb.identity()}
	if pb.base != "" {
		parts = append(parts, pb.base)
	}
	if bootstrap := pb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if pb.memory != nil {
		if mem := pb.memory.Context(); mem != "" {
			parts = append(parts, "# Memory\n\n"+mem)
		}
	}
	return parts
}

// identity returns the core identity section of the system prompt.
func (pb *PromptBuilder) identity() string {
	now := pb.now()
	tz, _ := now.Zone()
	if tz == "" {
		tz = "UTC"
	}
	osName := runtime.GOOS
	if osName == "darwin" {
		osName = "macOS"
	}
	ws := expandHome(pb.workspace)

	name := pb.persona.CharName
	if name == "" {
		name = "companion"
	}

	return fmt.Sprintf(`# %s

You are %s, a conversational companion that can also work on background objectives.

## Current Time
%s (%s)

## Runtime
%s %s, Go %s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md

Keep spoken replies short and natural. When the system prompt contains an
[INSTRUCTIONS-FOR-NEXT-RESPONSE] block, follow it in your next reply.`,
		name, name,
		now.Format("2006-01-02 15:04 (Monday)"), tz,
		osName, runtime.GOARCH, runtime.Version(),
		ws, ws, ws,
	)
}

// loadBootstrapFiles reads all bootstrap markdown files from the workspace.
func (pb *PromptBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(pb.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
