package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Memory is the workspace's file-backed long-term memory: MEMORY.md is
// curated by the user (or by the model through code execution) and
// HISTORY.md is an append-only log of finished background work.
type Memory struct {
	memoryFilePath  string
	historyFilePath string

	mu sync.Mutex
}

// NewMemory creates a Memory rooted at workspace.
// The memory/ subdirectory is created if it does not exist.
func NewMemory(workspace string) (*Memory, error) {
	dir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Memory{
		memoryFilePath:  filepath.Join(dir, "MEMORY.md"),
		historyFilePath: filepath.Join(dir, "HISTORY.md"),
	}, nil
}

// ReadLongTerm returns the contents of MEMORY.md, or "" if not yet written.
func (m *Memory) ReadLongTerm() string {
	data, err := os.ReadFile(m.memoryFilePath)
	if err != nil {
		return ""
	}
	return string(data)
}

// AppendHistory appends a timestamped entry to HISTORY.md followed by a
// blank line.
func (m *Memory) AppendHistory(entry string) error {
	entry = strings.TrimRight(entry, "\r\n ")
	if entry == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.historyFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] %s\n\n", time.Now().Format("2006-01-02 15:04"), entry)
	return err
}

// Context returns the long-term memory formatted for the system prompt, or
// "" if MEMORY.md is empty.
func (m *Memory) Context() string {
	lt := strings.TrimSpace(m.ReadLongTerm())
	if lt == "" {
		return ""
	}
	return "## Long-term Memory\n" + lt
}
