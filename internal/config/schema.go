// Package config defines the configuration schema for companion.
//
// JSON keys use camelCase. Every field has a default, so a partial file only
// needs to name what it changes.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// ProviderConfig selects and authenticates the completion endpoint.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	Model        string            `json:"model"`
	MaxTokens    int               `json:"maxTokens"`
	Temperature  float64           `json:"temperature"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
}

func defaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Model:       "gpt-4o",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// PersonaConfig fills the {char_name} and {verb} placeholders of task
// instructions.
type PersonaConfig struct {
	CharName string `json:"charName"`
	Verb     string `json:"verb"`
}

// AgentConfig holds conversational agent settings.
type AgentConfig struct {
	Workspace    string        `json:"workspace"`
	SystemPrompt string        `json:"systemPrompt"`
	MemoryWindow int           `json:"memoryWindow"`
	AutoRunCode  bool          `json:"autoRunCode"`
	TaskMaxSteps int           `json:"taskMaxSteps"`
	Persona      PersonaConfig `json:"persona"`
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Workspace:    "~/.companion/workspace",
		MemoryWindow: 50,
		TaskMaxSteps: 8,
		Persona:      PersonaConfig{CharName: "Companion"},
	}
}

// SchedulerConfig tunes the background task loop.
type SchedulerConfig struct {
	PollIntervalMs  int `json:"pollIntervalMs"`
	TaskMaxAttempts int `json:"taskMaxAttempts"`
}

func defaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{PollIntervalMs: 50, TaskMaxAttempts: 1}
}

// PollInterval returns the poll interval as a Duration.
func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// RetryConfig bounds completion retries.
type RetryConfig struct {
	MaxAttempts int `json:"maxAttempts"`
	BaseDelayMs int `json:"baseDelayMs"`
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelayMs: 1000}
}

// BaseDelay returns the base delay as a Duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// HeartbeatConfig configures the HEARTBEAT.md poller.
type HeartbeatConfig struct {
	Enabled   bool `json:"enabled"`
	IntervalS int  `json:"intervalS"`
}

func defaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{Enabled: true, IntervalS: 1800}
}

// Interval returns the heartbeat interval as a Duration.
func (h HeartbeatConfig) Interval() time.Duration {
	return time.Duration(h.IntervalS) * time.Second
}

// BridgeConfig configures the voice front-end websocket bridge.
type BridgeConfig struct {
	Enabled   bool     `json:"enabled"`
	URL       string   `json:"url"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
}

func defaultBridgeConfig() BridgeConfig {
	return BridgeConfig{URL: "ws://localhost:3001", AllowFrom: []string{}}
}

// ExecConfig configures code execution.
type ExecConfig struct {
	TimeoutS            int  `json:"timeoutS"`
	RestrictToWorkspace bool `json:"restrictToWorkspace"`
}

func defaultExecConfig() ExecConfig {
	return ExecConfig{TimeoutS: 60}
}

// Config is the root configuration object, loaded from ~/.companion/config.json.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Agent     AgentConfig     `json:"agent"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Retry     RetryConfig     `json:"retry"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Bridge    BridgeConfig    `json:"bridge"`
	Exec      ExecConfig      `json:"exec"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Provider:  defaultProviderConfig(),
		Agent:     defaultAgentConfig(),
		Scheduler: defaultSchedulerConfig(),
		Retry:     defaultRetryConfig(),
		Heartbeat: defaultHeartbeatConfig(),
		Bridge:    defaultBridgeConfig(),
		Exec:      defaultExecConfig(),
	}
}

// WorkspacePath returns the expanded absolute path to the agent workspace.
func (c *Config) WorkspacePath() string {
	ws := c.Agent.Workspace
	if ws == "" {
		ws = "~/.companion/workspace"
	}
	if len(ws) >= 2 && ws[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			ws = filepath.Join(home, ws[2:])
		}
	}
	return ws
}
