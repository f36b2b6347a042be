package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/objectives"
	"github.com/crystaldolphin/companion/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Queue background objectives for a running gateway",
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
}

var (
	taskAddFrom        string
	taskAddFingerprint string
)

var taskAddCmd = &cobra.Command{
	Use:   "add [objective...]",
	Short: "Add an objective (or a template with --from)",
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		entry, _, err := objectiveEntry(cfg, strings.Join(args, " "), taskAddFrom, taskAddFingerprint)
		if err != nil {
			return err
		}
		if err := objectives.NewInbox(cfg.WorkspacePath()).Push(entry); err != nil {
			return err
		}
		fmt.Printf("✓ Queued %q (%s)\n", truncStr(entry.Objective, 60), entry.Fingerprint)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskAddFrom, "from", "", "Objective template name from <workspace>/objectives")
	taskAddCmd.Flags().StringVar(&taskAddFingerprint, "fingerprint", "", "Deduplication key (default: derived from the objective)")
}

// objectiveEntry builds an inbox entry from free text or, with from set, a
// template. The template is returned too when one was used.
func objectiveEntry(cfg *config.Config, text, from, fingerprint string) (objectives.Entry, *objectives.Template, error) {
	entry := objectives.Entry{Objective: strings.TrimSpace(text), Fingerprint: fingerprint, Source: "cli"}
	var tmpl *objectives.Template
	if from != "" {
		t, err := objectives.NewLoader(cfg.WorkspacePath()).Load(from)
		if err != nil {
			if errors.Is(err, objectives.ErrNotFound) {
				return entry, nil, fmt.Errorf("no objective template named %q", from)
			}
			return entry, nil, err
		}
		if missing := t.Requires.Missing(); len(missing) > 0 {
			return entry, nil, fmt.Errorf("template %q is missing requirements: %s", from, strings.Join(missing, ", "))
		}
		tmpl = &t
		entry.Objective = t.Objective
		entry.Source = "template:" + t.Name
		entry.Pages = t.Pages
		if entry.Fingerprint == "" {
			entry.Fingerprint = t.Fingerprint
		}
	}
	if entry.Objective == "" {
		return entry, nil, fmt.Errorf("an objective or --from template is required")
	}
	if entry.Fingerprint == "" {
		entry.Fingerprint = tasks.Fingerprint(entry.Objective)
	}
	return entry, tmpl, nil
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued objectives and available templates",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pending, err := objectives.NewInbox(cfg.WorkspacePath()).List()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No objectives waiting for the gateway.")
		} else {
			fmt.Printf("%-18s %-12s %-16s %s\n", "Added", "Fingerprint", "Source", "Objective")
			fmt.Println(strings.Repeat("-", 88))
			for _, e := range pending {
				fmt.Printf("%-18s %-12s %-16s %s\n",
					e.AddedAt.Format("2006-01-02 15:04"), truncStr(e.Fingerprint, 11), truncStr(e.Source, 15), truncStr(e.Objective, 40))
			}
		}

		templates, err := objectives.NewLoader(cfg.WorkspacePath()).List()
		if err != nil {
			return err
		}
		if len(templates) > 0 {
			fmt.Println("\nTemplates:")
			for _, t := range templates {
				mark := "✓"
				if !t.Available() {
					mark = "✗ missing " + strings.Join(t.Requires.Missing(), ", ")
				}
				fmt.Printf("  %-20s %s %s\n", t.Name, truncStr(t.Description, 50), mark)
			}
		}
		return nil
	},
}
