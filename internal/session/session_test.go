package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystaldolphin/companion/internal/schema"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, dir
}

// ─── Session ───────────────────────────────────────────────────────────────

func TestState_TracksLastMessageAndSpeaking(t *testing.T) {
	s := New("cli:direct")
	if st := s.State(); st.LastID != "" || st.LastRole != "" || st.Busy() {
		t.Fatalf("expected empty idle state, got %+v", st)
	}

	u := s.AddUser("hi")
	st := s.State()
	if st.LastID != u.ID || st.LastRole != schema.RoleUser || st.Busy() {
		t.Fatalf("unexpected state after user message: %+v", st)
	}

	s.SetSpeaking(true)
	if !s.State().Busy() {
		t.Fatal("expected busy while speaking")
	}
	s.SetSpeaking(false)

	a := s.AddAssistant("hello")
	st = s.State()
	if st.LastID != a.ID || !st.Busy() {
		t.Fatalf("expected busy after assistant message, got %+v", st)
	}
}

func TestSpeaking_PlaybackAndTurnAreIndependent(t *testing.T) {
	s := New("k")
	s.SetSpeaking(true)
	s.SetResponding(true)
	s.SetResponding(false)
	if !s.Speaking() || !s.State().Speaking {
		t.Fatal("expected playback to keep the session speaking after the turn ends")
	}

	s.SetSpeaking(false)
	s.SetResponding(true)
	if !s.State().Speaking {
		t.Fatal("expected a turn in progress to count as speaking")
	}
	s.SetResponding(false)
	if s.Speaking() {
		t.Fatal("expected idle session")
	}
}

func TestHistory_ReturnsIndependentTail(t *testing.T) {
	s := New("k")
	s.AddUser("one")
	s.AddAssistant("two")
	s.AddUser("three")

	h := s.History(2)
	if h.Len() != 2 || h.Messages[0].Content != "two" {
		t.Fatalf("unexpected tail: %+v", h.Messages)
	}
	h.Messages[0].Content = "mutated"
	if s.Snapshot().Messages[1].Content != "two" {
		t.Fatal("history must not alias session storage")
	}
}

func TestClear(t *testing.T) {
	s := New("k")
	s.AddUser("x")
	s.SetSpeaking(true)
	s.Clear()
	if s.Len() != 0 || s.Speaking() {
		t.Fatalf("expected cleared session")
	}
}

// ─── Manager ───────────────────────────────────────────────────────────────

func TestManager_SaveAndReload(t *testing.T) {
	m, dir := newTestManager(t)
	s := m.GetOrCreate("cli:direct")
	s.AddUser("héllo <b>")
	s.AddAssistant("hi")
	if err := m.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "sessions", "cli_direct.jsonl")); err != nil {
		t.Fatalf("expected session file: %v", err)
	}

	m2, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	got := m2.GetOrCreate("cli:direct").Snapshot()
	want := s.Snapshot()
	if diff := cmp.Diff(want.Messages, got.Messages); diff != "" {
		t.Fatalf("reloaded messages (-want +got):\n%s", diff)
	}
}

func TestManager_SkipsMalformedLines(t *testing.T) {
	m, dir := newTestManager(t)
	path := filepath.Join(dir, "sessions", "k.jsonl")
	content := `{"_type":"metadata","key":"k","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z","metadata":{}}
not json
{"id":"1","role":"user","content":"ok","timestamp":"2024-01-01T00:00:00Z"}
{"id":"2","role":"robot","content":"bad role","timestamp":"2024-01-01T00:00:00Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := m.GetOrCreate("k")
	if s.Len() != 1 || s.State().LastID != "1" {
		t.Fatalf("expected one valid message, got %d", s.Len())
	}
}

func TestManager_ListNewestFirst(t *testing.T) {
	m, dir := newTestManager(t)
	write := func(name, updated string) {
		line := `{"_type":"metadata","key":"` + name + `","created_at":"` + updated + `","updated_at":"` + updated + `"}` + "\n"
		if err := os.WriteFile(filepath.Join(dir, "sessions", name+".jsonl"), []byte(line), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("old", "2024-01-01T00:00:00Z")
	write("new", "2025-01-01T00:00:00Z")

	var keys []string
	for _, info := range m.List() {
		keys = append(keys, info.Key)
	}
	if diff := cmp.Diff([]string{"new", "old"}, keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestManager_InvalidateDropsCache(t *testing.T) {
	m, _ := newTestManager(t)
	a := m.GetOrCreate("k")
	m.Invalidate("k")
	if b := m.GetOrCreate("k"); a == b {
		t.Fatal("expected a fresh session after Invalidate")
	}
}
