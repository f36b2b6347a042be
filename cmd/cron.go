package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/cron"
	"github.com/crystaldolphin/companion/internal/objectives"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled objectives",
}

func init() {
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronRemoveCmd)
	cronCmd.AddCommand(cronEnableCmd)
	cronCmd.AddCommand(cronRunCmd)
}

// ---- list ------------------------------------------------------------------

var cronListAll bool

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc := cron.NewService(config.CronStorePath(), nil)
		jobs := svc.ListAllJobs(cronListAll)
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-25s %-10s %-20s\n", "ID", "Name", "Schedule", "Status", "Next Run")
		fmt.Println(strings.Repeat("-", 88))
		for _, j := range jobs {
			status := "enabled"
			if !j.Enabled {
				status = "disabled"
			}
			nextRun := ""
			if j.State.NextRunAtMs != nil {
				nextRun = time.UnixMilli(*j.State.NextRunAtMs).Format("2006-01-02 15:04")
			}
			fmt.Printf("%-10s %-20s %-25s %-10s %-20s\n",
				j.ID, truncStr(j.Name, 19), truncStr(formatSchedule(j.Schedule), 24), status, nextRun)
		}
		return nil
	},
}

func init() {
	cronListCmd.Flags().BoolVarP(&cronListAll, "all", "a", false, "Include disabled jobs")
}

// ---- add -------------------------------------------------------------------

var (
	cronAddName        string
	cronAddObjective   string
	cronAddFrom        string
	cronAddFingerprint string
	cronAddEvery       int
	cronAddCron        string
	cronAddTZ          string
	cronAddAt          string
)

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule an objective",
	RunE: func(_ *cobra.Command, _ []string) error {
		if cronAddTZ != "" && cronAddCron == "" {
			return fmt.Errorf("--tz can only be used with --cron")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		entry, tmpl, err := objectiveEntry(cfg, cronAddObjective, cronAddFrom, cronAddFingerprint)
		if err != nil {
			return err
		}
		expr := cronAddCron
		if expr == "" && cronAddEvery == 0 && cronAddAt == "" && tmpl != nil {
			expr = tmpl.Schedule
		}

		spec := cron.JobSpec{
			Name:        cronAddName,
			Objective:   entry.Objective,
			Fingerprint: entry.Fingerprint,
			Pages:       entry.Pages,
		}
		switch {
		case cronAddEvery > 0:
			spec.Kind = cron.KindEvery
			spec.EveryMs = int64(cronAddEvery) * 1000
		case expr != "":
			spec.Kind = cron.KindCron
			spec.Expr = expr
			spec.TZ = cronAddTZ
		case cronAddAt != "":
			dt, err := time.ParseInLocation("2006-01-02T15:04:05", cronAddAt, time.Local)
			if err != nil {
				dt, err = time.Parse(time.RFC3339, cronAddAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q: %w", cronAddAt, err)
				}
			}
			spec.Kind = cron.KindAt
			spec.AtMs = dt.UnixMilli()
			spec.DeleteAfterRun = true
		default:
			return fmt.Errorf("must specify --every, --cron, or --at (or a template with a schedule)")
		}
		if spec.Name == "" && tmpl != nil {
			spec.Name = tmpl.Name
		}
		if spec.Name == "" {
			spec.Name = truncStr(entry.Objective, 30)
		}

		job, err := cron.NewService(config.CronStorePath(), nil).AddJob(spec)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
		return nil
	},
}

func init() {
	f := cronAddCmd.Flags()
	f.StringVarP(&cronAddName, "name", "n", "", "Job name (default: start of the objective)")
	f.StringVarP(&cronAddObjective, "objective", "o", "", "Objective to work on when the job fires")
	f.StringVar(&cronAddFrom, "from", "", "Objective template name instead of --objective")
	f.StringVar(&cronAddFingerprint, "fingerprint", "", "Deduplication key")
	f.IntVarP(&cronAddEvery, "every", "e", 0, "Run every N seconds")
	f.StringVarP(&cronAddCron, "cron", "c", "", "Cron expression (e.g. '0 9 * * *')")
	f.StringVar(&cronAddTZ, "tz", "", "IANA timezone for --cron")
	f.StringVar(&cronAddAt, "at", "", "Run once at ISO datetime")
}

// ---- remove / enable / run -------------------------------------------------

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if cron.NewService(config.CronStorePath(), nil).RemoveJob(args[0]) {
			fmt.Printf("✓ Removed job %s\n", args[0])
		} else {
			fmt.Printf("Job %s not found\n", args[0])
		}
		return nil
	},
}

var cronEnableDisable bool

var cronEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable (or disable) a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, ok := cron.NewService(config.CronStorePath(), nil).EnableJob(args[0], !cronEnableDisable)
		if !ok {
			fmt.Printf("Job %s not found\n", args[0])
			return nil
		}
		action := "enabled"
		if cronEnableDisable {
			action = "disabled"
		}
		fmt.Printf("✓ Job '%s' %s\n", job.Name, action)
		return nil
	},
}

func init() {
	cronEnableCmd.Flags().BoolVar(&cronEnableDisable, "disable", false, "Disable instead of enable")
}

var cronRunForce bool

// cronRunCmd fires a job now by handing its objective to the gateway inbox.
var cronRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job now",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		inbox := objectives.NewInbox(cfg.WorkspacePath())

		svc := cron.NewService(config.CronStorePath(), nil)
		svc.OnJob(func(_ context.Context, job cron.Job) error {
			return inbox.Push(objectives.Entry{
				Objective:   job.Payload.Objective,
				Fingerprint: job.Payload.Fingerprint,
				Pages:       job.Payload.Pages,
				Source:      "cron:" + job.ID,
			})
		})

		if svc.RunJob(context.Background(), args[0], cronRunForce) {
			fmt.Println("✓ Job handed to the gateway")
		} else {
			fmt.Printf("Failed to run job %s (not found or disabled; use --force)\n", args[0])
		}
		return nil
	},
}

func init() {
	cronRunCmd.Flags().BoolVarP(&cronRunForce, "force", "f", false, "Run even if disabled")
}

// ---- helpers ---------------------------------------------------------------

func formatSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindEvery:
		if s.EveryMs != nil {
			return fmt.Sprintf("every %ds", *s.EveryMs/1000)
		}
	case cron.KindCron:
		if s.Expr != nil {
			if s.TZ != nil {
				return *s.Expr + " (" + *s.TZ + ")"
			}
			return *s.Expr
		}
	case cron.KindAt:
		return "one-time"
	}
	return s.Kind
}

func truncStr(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
