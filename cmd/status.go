package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/cron"
	"github.com/crystaldolphin/companion/internal/heartbeat"
	"github.com/crystaldolphin/companion/internal/objectives"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show companion status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s companion Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(exists(cfgPath)))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	ws := cfg.WorkspacePath()
	fmt.Printf("Workspace: %s %s\n", ws, mark(exists(ws)))
	fmt.Printf("Model:     %s\n", cfg.Provider.Model)

	e := cfg.ResolveEndpoint()
	endpoint := e.Label()
	if e.APIBase != "" {
		endpoint += " (" + e.APIBase + ")"
	}
	fmt.Printf("Endpoint:  %s %s\n\n", endpoint, mark(cfg.Ready()))

	fmt.Printf("Scheduler: poll %v, %d attempt(s) per task\n", cfg.Scheduler.PollInterval(), cfg.Scheduler.TaskMaxAttempts)
	fmt.Printf("Retry:     %d attempts, base delay %v\n", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay())
	fmt.Printf("Code:      auto-run %s, timeout %ds\n", mark(cfg.Agent.AutoRunCode), cfg.Exec.TimeoutS)

	hb := "disabled"
	if cfg.Heartbeat.Enabled {
		hb = fmt.Sprintf("every %v, %d active objective(s)", cfg.Heartbeat.Interval(), heartbeatCount(ws))
	}
	fmt.Printf("Heartbeat: %s\n", hb)

	jobs := cron.NewService(config.CronStorePath(), nil).ListJobs()
	fmt.Printf("Cron:      %d enabled job(s)\n", len(jobs))

	pending, _ := objectives.NewInbox(ws).List()
	fmt.Printf("Inbox:     %d objective(s) waiting\n", len(pending))
	return nil
}

func heartbeatCount(workspace string) int {
	data, err := os.ReadFile(filepath.Join(workspace, heartbeat.FileName))
	if err != nil {
		return 0
	}
	return len(heartbeat.ActiveObjectives(string(data)))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
