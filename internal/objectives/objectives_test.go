package objectives

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTemplate(t *testing.T, workspace, name, content string) {
	t.Helper()
	dir := filepath.Join(workspace, "objectives")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ─── templates ─────────────────────────────────────────────────────────────

func TestParse_Frontmatter(t *testing.T) {
	tpl, err := Parse(`---
name: standup
description: Morning summary
fingerprint: standup-v1
schedule: "0 9 * * 1-5"
requires:
  bins: [git]
  env: [HOME]
pages:
  - https://example.com/changelog
---

Summarise yesterday's commits in the workspace.
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Template{
		Name:        "standup",
		Description: "Morning summary",
		Fingerprint: "standup-v1",
		Schedule:    "0 9 * * 1-5",
		Requires:    Requirements{Bins: []string{"git"}, Env: []string{"HOME"}},
		Pages:       []string{"https://example.com/changelog"},
		Objective:   "Summarise yesterday's commits in the workspace.",
	}
	if diff := cmp.Diff(want, tpl); diff != "" {
		t.Fatalf("template (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"unterminated": "---\nname: x\nbody",
		"empty body":   "---\nname: x\n---\n\n",
		"bad yaml":     "---\nname: [\n---\nbody",
	} {
		if _, err := Parse(doc); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoader_ListAndLoad(t *testing.T) {
	ws := t.TempDir()
	writeTemplate(t, ws, "b.md", "---\nname: zeta\n---\nsecond")
	writeTemplate(t, ws, "a.md", "check the weather")
	writeTemplate(t, ws, "broken.md", "---\nname: nope")
	writeTemplate(t, ws, "notes.txt", "ignored")

	l := NewLoader(ws)
	all, err := l.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, tpl := range all {
		names = append(names, tpl.Name)
	}
	if diff := cmp.Diff([]string{"a", "zeta"}, names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}

	byFile, err := l.Load("a")
	if err != nil || byFile.Objective != "check the weather" {
		t.Fatalf("Load(a): %+v %v", byFile, err)
	}
	byName, err := l.Load("zeta")
	if err != nil || byName.Objective != "second" {
		t.Fatalf("Load(zeta): %+v %v", byName, err)
	}
	if _, err := l.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoader_MissingDir(t *testing.T) {
	all, err := NewLoader(t.TempDir()).List()
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty list, got %v %v", all, err)
	}
}

func TestRequirements_Missing(t *testing.T) {
	r := Requirements{Bins: []string{"definitely-not-a-binary-xyz"}, Env: []string{"COMPANION_TEST_UNSET_VAR"}}
	want := []string{"CLI: definitely-not-a-binary-xyz", "ENV: COMPANION_TEST_UNSET_VAR"}
	if diff := cmp.Diff(want, r.Missing()); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
}

// ─── inbox ─────────────────────────────────────────────────────────────────

func TestInbox_PushListDrain(t *testing.T) {
	in := NewInbox(t.TempDir())
	if err := in.Push(Entry{Objective: "one"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := in.Push(Entry{Objective: "two", Fingerprint: "fp"}); err != nil {
		t.Fatalf("Push: %v", err)
	}

	listed, err := in.List()
	if err != nil || len(listed) != 2 {
		t.Fatalf("List: %v %v", listed, err)
	}

	drained, err := in.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 2 || drained[1].Fingerprint != "fp" || drained[0].AddedAt.IsZero() {
		t.Fatalf("unexpected entries: %+v", drained)
	}

	again, err := in.Drain()
	if err != nil || len(again) != 0 {
		t.Fatalf("expected empty second drain, got %v %v", again, err)
	}
}
