// Package session manages conversations and stores them as JSONL files.
//
// File format:
//
//	Line 1:  {"_type":"metadata","key":"…","created_at":"…","updated_at":"…","metadata":{…}}
//	Line 2+: one JSON message object per line
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/companion/internal/schema"
)

// Manager loads and persists sessions as JSONL files.
type Manager struct {
	sessionsDir string   // workspace/sessions/
	cache       sync.Map // key → *Session
	logger      *slog.Logger
}

// Info describes a stored session without loading its messages.
type Info struct {
	Key       string
	CreatedAt string
	UpdatedAt string
	Path      string
}

type metadataLine struct {
	Type      string         `json:"_type"`
	Key       string         `json:"key"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Metadata  map[string]any `json:"metadata"`
}

// NewManager creates a Manager rooted at the workspace directory.
// It creates the sessions subdirectory if necessary.
func NewManager(workspace string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{sessionsDir: dir, logger: logger}, nil
}

// GetOrCreate returns the cached session for key, loading from disk if needed,
// or creating an empty new one.
func (m *Manager) GetOrCreate(key string) *Session {
	if v, ok := m.cache.Load(key); ok {
		return v.(*Session)
	}

	s := m.load(key)
	if s == nil {
		s = New(key)
	}

	actual, _ := m.cache.LoadOrStore(key, s)
	return actual.(*Session)
}

// Save writes the session to disk and updates the cache.
func (m *Manager) Save(s *Session) error {
	path := m.sessionPath(s.Key)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	s.mu.Lock()
	msgs := s.messages.Clone()
	meta := metadataLine{
		Type:      "metadata",
		Key:       s.Key,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata:  s.Metadata,
	}
	s.mu.Unlock()

	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	for _, msg := range msgs.Messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}

	m.cache.Store(s.Key, s)
	return nil
}

// Invalidate removes a session from the in-memory cache (used after /new).
func (m *Manager) Invalidate(key string) {
	m.cache.Delete(key)
}

// List returns metadata for all stored sessions, newest first.
func (m *Manager) List() []Info {
	entries, _ := filepath.Glob(filepath.Join(m.sessionsDir, "*.jsonl"))
	var out []Info

	for _, path := range entries {
		meta, ok := readMetadata(path)
		if !ok {
			continue
		}
		key := meta.Key
		if key == "" {
			key = strings.TrimSuffix(filepath.Base(path), ".jsonl")
			key = strings.Replace(key, "_", ":", 1)
		}
		out = append(out, Info{Key: key, CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt, Path: path})
	}

	// RFC 3339 timestamps sort lexicographically.
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

func readMetadata(path string) (metadataLine, bool) {
	f, err := os.Open(path)
	if err != nil {
		return metadataLine{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		return metadataLine{}, false
	}
	var meta metadataLine
	if json.Unmarshal(scanner.Bytes(), &meta) != nil || meta.Type != "metadata" {
		return metadataLine{}, false
	}
	return meta, true
}

// sessionPath converts a session key to its JSONL file path.
func (m *Manager) sessionPath(key string) string {
	name := safeFilename(strings.ReplaceAll(key, ":", "_"))
	return filepath.Join(m.sessionsDir, name+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// load reads a session from disk. It returns nil when no file exists or it
// cannot be read.
func (m *Manager) load(key string) *Session {
	path := m.sessionPath(key)

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	s := New(key)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if bytes.Contains(line, []byte(`"_type":"metadata"`)) {
			var meta metadataLine
			if err := json.Unmarshal(line, &meta); err == nil {
				if meta.Metadata != nil {
					s.Metadata = meta.Metadata
				}
				if t, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
					s.CreatedAt = t
				}
				continue
			}
		}

		var msg schema.Message
		if err := json.Unmarshal(line, &msg); err != nil || !msg.Role.Valid() {
			m.logger.Warn("session: skipping malformed line", "key", key, "err", err)
			continue
		}
		s.messages.Add(msg)
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warn("session: error reading file", "key", key, "err", err)
		return nil
	}
	return s
}
