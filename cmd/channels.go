package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect front-end channels",
}

func init() {
	channelsCmd.AddCommand(channelsStatusCmd)
}

var channelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show channel status",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		bridge := cfg.Bridge.URL
		if cfg.Bridge.Token != "" {
			bridge += " (token " + tokenHint(cfg.Bridge.Token) + ")"
		}

		fmt.Printf("%-12s %-8s %s\n", "Channel", "Enabled", "Configuration")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-12s %-8s %s\n", "cli", mark(true), "companion agent / gateway --cli")
		fmt.Printf("%-12s %-8s %s\n", "bridge", mark(cfg.Bridge.Enabled), bridge)
		return nil
	},
}

func tokenHint(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
