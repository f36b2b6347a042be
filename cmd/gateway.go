package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/companion/internal/channels"
	"github.com/crystaldolphin/companion/internal/dependency"
)

var (
	gatewayCLI           bool
	gatewayInboxInterval time.Duration
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the companion with its channels, scheduler, cron and heartbeat",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVar(&gatewayCLI, "cli", false, "Also accept input from the terminal")
	gatewayCmd.Flags().DurationVar(&gatewayInboxInterval, "inbox-interval", 2*time.Second, "How often to pick up objectives added with 'task add'")
}

func runGateway(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}
	cfg := c.Config()

	fmt.Printf("%s Starting companion gateway...\n", logo)

	mgr := channels.NewManager(c.MessageBus(), c.Logger())
	if cfg.Bridge.Enabled {
		mgr.Register(channels.NewBridgeChannel(cfg.Bridge, c.MessageBus(), c.Logger()))
	}
	if gatewayCLI {
		mgr.Register(channels.NewCLIChannel(c.MessageBus(), os.Stdin, os.Stdout, c.Logger()))
	}
	if enabled := mgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled; background objectives will still run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Loop().Run(gctx) })
	g.Go(func() error { return c.Scheduler().Run(gctx) })
	g.Go(func() error { return c.CronService().Start(gctx) })
	if cfg.Heartbeat.Enabled {
		g.Go(func() error { return c.Heartbeat().Start(gctx) })
	}
	g.Go(func() error { return drainInboxLoop(gctx, c, gatewayInboxInterval) })
	g.Go(func() error { return mgr.StartAll(gctx) })

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func drainInboxLoop(ctx context.Context, c *dependency.Container, every time.Duration) error {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	c.DrainInbox()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.DrainInbox()
		}
	}
}
