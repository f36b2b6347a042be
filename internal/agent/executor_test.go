package agent

import (
	"context"
	"strings"
	"testing"
)

func TestExecutor_Supports(t *testing.T) {
	e := NewExecutor("", 5, false)
	for _, lang := range []string{"shell", "sh", "Bash", "python", "py"} {
		if !e.Supports(lang) {
			t.Errorf("expected %q to be supported", lang)
		}
	}
	if e.Supports("ruby") {
		t.Error("ruby should not be supported")
	}
}

func TestExecutor_RunsShell(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, false)
	out, err := e.Run(context.Background(), "shell", "echo hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecutor_ReportsExitCode(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, false)
	out, err := e.Run(context.Background(), "sh", "exit 3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Exit code: 3") {
		t.Fatalf("expected exit code in output, got %q", out)
	}
}

func TestExecutor_DenyPatterns(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, false)
	out, err := e.Run(context.Background(), "shell", "rm -rf /tmp/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "blocked") {
		t.Fatalf("expected guard message, got %q", out)
	}
}

func TestExecutor_UnsupportedLanguage(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, false)
	out, _ := e.Run(context.Background(), "ruby", "puts 1")
	if !strings.Contains(out, "unsupported language") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecutor_RestrictToWorkspace(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, true)
	out, _ := e.Run(context.Background(), "shell", "cat /etc/passwd")
	if !strings.Contains(out, "blocked") {
		t.Fatalf("expected path guard, got %q", out)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	e := NewExecutor(t.TempDir(), 5, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx, "shell", "echo hi"); err == nil {
		t.Fatal("expected cancellation error")
	}
}
