package objectives

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one objective waiting in the inbox.
type Entry struct {
	Objective   string    `json:"objective"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Source      string    `json:"source,omitempty"`
	Pages       []string  `json:"pages,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
}

// Inbox is an append-only JSONL file. `companion task add` pushes to it and
// the gateway drains it into the scheduler.
type Inbox struct {
	path string
	mu   sync.Mutex
}

// NewInbox creates an Inbox at <workspace>/objectives/inbox.jsonl.
func NewInbox(workspace string) *Inbox {
	return &Inbox{path: filepath.Join(workspace, "objectives", "inbox.jsonl")}
}

// Push appends e.
func (in *Inbox) Push(e Entry) error {
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode inbox entry: %w", err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(in.path), 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	f, err := os.OpenFile(in.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}
	return nil
}

// List returns the pending entries without removing them.
func (in *Inbox) List() ([]Entry, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return readEntries(in.path)
}

// Drain removes and returns all pending entries. The file is renamed before
// reading so a concurrent Push from another process lands in a fresh file.
func (in *Inbox) Drain() ([]Entry, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	draining := in.path + ".draining"
	if err := os.Rename(in.path, draining); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim inbox: %w", err)
	}
	entries, err := readEntries(draining)
	if rmErr := os.Remove(draining); rmErr != nil && err == nil {
		err = fmt.Errorf("remove drained inbox: %w", rmErr)
	}
	return entries, err
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open inbox: %w", err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var e Entry
		if json.Unmarshal(scanner.Bytes(), &e) != nil || e.Objective == "" {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read inbox: %w", err)
	}
	return out, nil
}
