// Package responder drives one streamed exchange with a completion provider
// and classifies how it ended.
package responder

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/crystaldolphin/companion/internal/providers"
	"github.com/crystaldolphin/companion/internal/schema"
	"github.com/crystaldolphin/companion/internal/stream"
)

// EventKind classifies a responder event.
type EventKind int

const (
	// EventDelta carries one fragment as it arrives.
	EventDelta EventKind = iota
	// EventConfirmExecution ends an exchange that produced code to run.
	EventConfirmExecution
	// EventPause ends an exchange with no executable action.
	EventPause
	// EventError ends an exchange that failed.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "assistant_delta"
	case EventConfirmExecution:
		return "confirm_execution"
	case EventPause:
		return "pause"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one step of an exchange.
//
// Delta is the fragment for EventDelta and the full accumulation for the
// terminal kinds. Err is set only for EventError.
type Event struct {
	Kind     EventKind
	Delta    stream.Delta
	Language string
	Code     string
	Err      error
}

// Terminal reports whether e ends the exchange.
func (e Event) Terminal() bool { return e.Kind != EventDelta }

// Responder runs exchanges against a provider.
type Responder struct {
	provider providers.Provider
	opts     providers.ChatOptions
	logger   *slog.Logger
}

// New creates a Responder. The provider is normally a *providers.RetryingClient.
func New(provider providers.Provider, opts providers.ChatOptions, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{provider: provider, opts: opts, logger: logger}
}

// Respond starts one exchange. The returned sequence is single-use: it
// yields every fragment as EventDelta followed by exactly one terminal event,
// unless the consumer stops early.
func (r *Responder) Respond(ctx context.Context, system string, history schema.Messages) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		acc, err := r.consume(ctx, system, history, yield)
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			r.logger.Error("responder: exchange failed", "err", err, "keys", acc.Keys())
			yield(Event{Kind: EventError, Delta: acc, Err: err})
			return
		}

		if acc.HasCode() {
			yield(Event{Kind: EventConfirmExecution, Delta: acc, Language: acc.Language, Code: acc.Code})
			return
		}
		yield(Event{Kind: EventPause, Delta: acc})
	}
}

// Collect runs an exchange to completion and returns its terminal event.
func (r *Responder) Collect(ctx context.Context, system string, history schema.Messages, onDelta func(stream.Delta)) Event {
	var last Event
	for ev := range r.Respond(ctx, system, history) {
		if ev.Kind == EventDelta {
			if onDelta != nil {
				onDelta(ev.Delta)
			}
			continue
		}
		last = ev
	}
	return last
}

var errStopped = errors.New("consumer stopped")

func (r *Responder) consume(
	ctx context.Context,
	system string,
	history schema.Messages,
	yield func(Event) bool,
) (stream.Delta, error) {
	var acc stream.Delta

	s, err := r.provider.Stream(ctx, providers.Request{System: system, Messages: history, Options: r.opts})
	if err != nil {
		return acc, err
	}
	defer s.Close()

	for {
		if err := ctx.Err(); err != nil {
			return acc, err
		}

		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return acc, nil
		}
		if err != nil {
			return acc, err
		}
		if frag.IsEmpty() {
			return acc, nil
		}

		next, err := stream.Merge(acc, frag)
		if err != nil {
			return acc, err
		}
		acc = next

		if !yield(Event{Kind: EventDelta, Delta: frag}) {
			return acc, errStopped
		}
	}
}
