package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), *cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"provider":  map[string]any{"model": "deepseek/deepseek-chat", "apiKey": "sk-x"},
		"scheduler": map[string]any{"taskMaxAttempts": 3},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Model != "deepseek/deepseek-chat" {
		t.Errorf("unexpected model %q", cfg.Provider.Model)
	}
	if cfg.Scheduler.TaskMaxAttempts != 3 {
		t.Errorf("expected taskMaxAttempts 3, got %d", cfg.Scheduler.TaskMaxAttempts)
	}
	if got := cfg.Scheduler.PollInterval(); got != 50*time.Millisecond {
		t.Errorf("expected default poll interval, got %v", got)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay() != time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), *cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Agent.AutoRunCode = true
	cfg.Bridge.Enabled = true
	cfg.Agent.Persona = PersonaConfig{CharName: "Ada", Verb: " who hums"}

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, *got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestWorkspacePath_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cfg := DefaultConfig()
	cfg.Agent.Workspace = "~/ws"
	if got := cfg.WorkspacePath(); got != filepath.Join(home, "ws") {
		t.Errorf("unexpected workspace %q", got)
	}
}

// ─── endpoint resolution ───────────────────────────────────────────────────

func TestResolveEndpoint(t *testing.T) {
	cases := []struct {
		name     string
		provider ProviderConfig
		wantSpec string
		wantBase string
	}{
		{"model prefix", ProviderConfig{Model: "deepseek/deepseek-chat"}, "deepseek", "https://api.deepseek.com"},
		{"keyword", ProviderConfig{Model: "gpt-4o"}, "openai", "https://api.openai.com/v1"},
		{"base wins", ProviderConfig{Model: "gpt-4o", APIBase: "https://openrouter.ai/api/v1"}, "openrouter", "https://openrouter.ai/api/v1"},
		{"unknown", ProviderConfig{Model: "mystery", APIBase: "http://example.test/v1"}, "", "http://example.test/v1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Provider = tc.provider
			e := cfg.ResolveEndpoint()
			gotSpec := ""
			if e.Spec != nil {
				gotSpec = e.Spec.Name
			}
			if gotSpec != tc.wantSpec || e.APIBase != tc.wantBase {
				t.Errorf("got (%q, %q), want (%q, %q)", gotSpec, e.APIBase, tc.wantSpec, tc.wantBase)
			}
		})
	}
}

func TestReady(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Ready() {
		t.Error("expected defaults without a key not to be ready")
	}
	cfg.Provider.Model = "ollama/llama3"
	if !cfg.Ready() {
		t.Error("expected a local endpoint to be ready without a key")
	}
}
