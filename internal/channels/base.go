// Package channels connects front ends (terminal, voice bridge) to the
// message bus.
package channels

import (
	"context"
	"log/slog"
	"slices"

	"github.com/crystaldolphin/companion/internal/bus"
)

// Channel is one front end. Start blocks until ctx is cancelled or the
// channel gives up; Send renders an outbound message.
type Channel interface {
	Name() bus.Channel
	Start(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Base holds common state and helper methods shared by all channels.
type Base struct {
	name      bus.Channel
	b         bus.Bus
	allowFrom []string // empty = allow all
	logger    *slog.Logger
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.Channel, b bus.Bus, allowFrom []string, logger *slog.Logger) Base {
	if logger == nil {
		logger = slog.Default()
	}
	return Base{name: name, b: b, allowFrom: allowFrom, logger: logger}
}

// Name returns the channel name.
func (b *Base) Name() bus.Channel { return b.name }

// IsAllowed checks whether senderID is on the allowlist.
func (b *Base) IsAllowed(senderID string) bool {
	return len(b.allowFrom) == 0 || slices.Contains(b.allowFrom, senderID)
}

// HandleMessage verifies the sender is allowed, then pushes a text message
// to the bus.
func (b *Base) HandleMessage(ctx context.Context, senderID, chatID, content string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		b.logger.Warn("channel: access denied", "channel", b.name, "sender", senderID)
		return
	}
	msg := bus.NewInboundMessage(b.name, senderID, chatID, content)
	msg.Metadata = metadata
	b.publish(ctx, msg)
}

// HandleSpeaking pushes a speaking-state change to the bus.
func (b *Base) HandleSpeaking(ctx context.Context, chatID string, speaking bool) {
	b.publish(ctx, bus.NewSpeakingMessage(b.name, chatID, speaking))
}

func (b *Base) publish(ctx context.Context, msg bus.InboundMessage) {
	if err := b.b.PublishInbound(ctx, msg); err != nil {
		b.logger.Debug("channel: inbound dropped", "channel", b.name, "err", err)
	}
}
