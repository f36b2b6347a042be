// Package providers defines the streaming completion interface, the bounded
// retry wrapper around it, and the concrete OpenAI-compatible backend.
package providers

import (
	"context"

	"github.com/crystaldolphin/companion/internal/schema"
	"github.com/crystaldolphin/companion/internal/stream"
)

// ChatOptions configures a single LLM chat request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Request is one completion call: the system message, the conversation, and
// per-call options.
type Request struct {
	System   string
	Messages schema.Messages
	Options  ChatOptions
}

// DeltaStream yields the fragments of one completion.
//
// Recv returns io.EOF once the provider has finished. Close releases the
// underlying connection and is safe to call more than once.
type DeltaStream interface {
	Recv() (stream.Delta, error)
	Close() error
}

// Provider is the interface every completion backend must satisfy.
type Provider interface {
	Stream(ctx context.Context, req Request) (DeltaStream, error)
	DefaultModel() string
}
