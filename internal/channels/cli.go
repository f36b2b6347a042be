package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/crystaldolphin/companion/internal/bus"
	"github.com/crystaldolphin/companion/internal/shared/cmdutils"
)

// SenderCLI is the sender id of terminal input.
const SenderCLI = "user"

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel is the terminal front end: lines from in become inbound
// messages, and outbound messages are printed to out as they arrive.
// Deltas are printed inline; the final reply only ends the line when it
// was already streamed.
type CLIChannel struct {
	Base
	in  io.Reader
	out io.Writer

	mu        sync.Mutex
	streaming bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewCLIChannel creates a CLIChannel reading in and writing out.
func NewCLIChannel(b bus.Bus, in io.Reader, out io.Writer, logger *slog.Logger) *CLIChannel {
	return &CLIChannel{
		Base: NewBase(bus.ChannelCLI, b, nil, logger),
		in:   in,
		out:  out,
		done: make(chan struct{}),
	}
}

// Done is closed once Start has returned.
func (c *CLIChannel) Done() <-chan struct{} { return c.done }

// Start runs the REPL until ctx is cancelled, input ends, or the user types
// an exit command.
func (c *CLIChannel) Start(ctx context.Context) error {
	defer c.doneOnce.Do(func() { close(c.done) })
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintf(c.out, "companion ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out, "\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if cliExitCommands[strings.ToLower(line)] {
				fmt.Fprintln(c.out, "Goodbye!")
				return nil
			}
			c.HandleMessage(ctx, SenderCLI, bus.ChatDirect, line, nil)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send prints an outbound message.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Kind {
	case bus.OutboundDelta:
		if !c.streaming {
			fmt.Fprint(c.out, "\n🐬 ")
			c.streaming = true
		}
		fmt.Fprint(c.out, msg.Content)
	case bus.OutboundReply:
		if c.streaming {
			fmt.Fprint(c.out, "\n\n")
			c.streaming = false
			return nil
		}
		cmdutils.PrintResponse(c.out, msg.Content)
	default:
		if c.streaming {
			fmt.Fprintln(c.out)
			c.streaming = false
		}
		cmdutils.PrintNotice(c.out, msg.Content)
	}
	return nil
}
