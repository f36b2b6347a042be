// Package cmd implements the companion CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/dependency"
	"github.com/crystaldolphin/companion/internal/logging"
)

const version = "0.1.0"
const logo = "🐬"

var (
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
	flagDryRun   bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: logo + " companion: a voice assistant that keeps working in the background",
	Long: logo + " companion talks with you and, while you talk, works through background\n" +
		"objectives, then mentions what it found the next time it speaks.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		_, err := logging.Setup(os.Stderr, logging.Options{Level: flagLogLevel, JSON: flagLogJSON})
		return err
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ~/.companion/config.json)")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	pf.BoolVar(&flagLogJSON, "log-json", false, "Write logs as JSON")
	pf.BoolVar(&flagDryRun, "dry-run", false, "Use a scripted model instead of the configured provider")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(channelsCmd)
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildContainer() (*dependency.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return dependency.New(cfg, dependency.Options{DryRun: flagDryRun})
}
