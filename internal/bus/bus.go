// Package bus carries messages between front-end channels and the agent loop.
package bus

import "context"

// Bus is the contract between channels and the agent core.
type Bus interface {
	// PublishInbound delivers a message from a channel to the agent. It
	// blocks while the buffer is full unless ctx ends first.
	PublishInbound(ctx context.Context, msg InboundMessage) error
	// PublishOutbound delivers a message from the agent to a channel.
	PublishOutbound(ctx context.Context, msg OutboundMessage) error
	// InboundChan returns a receive-only channel for the agent to consume.
	InboundChan() <-chan InboundMessage
	// OutboundChan returns a receive-only channel for the channel manager.
	OutboundChan() <-chan OutboundMessage
}

// MessageBus is the in-process Bus backed by buffered Go channels.
type MessageBus struct {
	inbound  chan InboundMessage  // channels -> agent
	outbound chan OutboundMessage // agent -> channels
}

// NewMessageBus creates a MessageBus whose two directions each buffer
// bufSize messages.
func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MessageBus) InboundChan() <-chan InboundMessage   { return b.inbound }
func (b *MessageBus) OutboundChan() <-chan OutboundMessage { return b.outbound }

// InboundSize returns the number of buffered inbound messages.
func (b *MessageBus) InboundSize() int { return len(b.inbound) }

// OutboundSize returns the number of buffered outbound messages.
func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
