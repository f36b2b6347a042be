package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/companion/internal/channels"
	"github.com/crystaldolphin/companion/internal/shared/cmdutils"
)

var agentMessage string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the companion in the terminal",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
}

func runAgent(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}

	if agentMessage != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cmdutils.PrintNotice(os.Stderr, "thinking...")
		cmdutils.PrintResponse(os.Stdout, c.Loop().ProcessDirect(ctx, agentMessage))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cli := channels.NewCLIChannel(c.MessageBus(), os.Stdin, os.Stdout, c.Logger())
	mgr := channels.NewManager(c.MessageBus(), c.Logger(), cli)

	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Loop().Run(gctx) })
	g.Go(func() error { return c.Scheduler().Run(gctx) })
	g.Go(func() error { return mgr.StartAll(gctx) })
	g.Go(func() error {
		select {
		case <-cli.Done():
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
