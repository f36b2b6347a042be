package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/crystaldolphin/companion/internal/providers"
	"github.com/crystaldolphin/companion/internal/schema"
	"github.com/crystaldolphin/companion/internal/stream"
)

type downProvider struct{ calls int }

func (p *downProvider) DefaultModel() string { return "down" }

func (p *downProvider) Stream(context.Context, providers.Request) (providers.DeltaStream, error) {
	p.calls++
	return nil, errors.New("connection refused")
}

func collectAll(r *Responder) []Event {
	var out []Event
	for ev := range r.Respond(context.Background(), "sys", schema.NewMessages(schema.NewUserMessage("hi"))) {
		out = append(out, ev)
	}
	return out
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// ─── classification ────────────────────────────────────────────────────────

func TestRespond_PlainAnswerPauses(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{{Message: "Hello "}, {Message: "there"}})
	evs := collectAll(New(p, providers.ChatOptions{}, nil))

	want := []EventKind{EventDelta, EventDelta, EventPause}
	if diff := cmp.Diff(want, kinds(evs)); diff != "" {
		t.Fatalf("event kinds (-want +got):\n%s", diff)
	}
	if got := evs[2].Delta.Message; got != "Hello there" {
		t.Errorf("expected accumulated message, got %q", got)
	}
}

func TestRespond_CodeConfirmsExecution(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{
		{Message: "Running it."},
		{Language: "python"},
		{Code: "print("},
		{Code: "1)"},
	})
	evs := collectAll(New(p, providers.ChatOptions{}, nil))

	last := evs[len(evs)-1]
	if last.Kind != EventConfirmExecution {
		t.Fatalf("expected confirm_execution, got %v", last.Kind)
	}
	if last.Language != "python" || last.Code != "print(1)" {
		t.Errorf("unexpected payload: %q %q", last.Language, last.Code)
	}
}

func TestRespond_EmptyFragmentEndsStream(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{{Message: "a"}, {}, {Code: "never"}})
	evs := collectAll(New(p, providers.ChatOptions{}, nil))

	if diff := cmp.Diff([]EventKind{EventDelta, EventPause}, kinds(evs)); diff != "" {
		t.Fatalf("event kinds (-want +got):\n%s", diff)
	}
}

// ─── failures ──────────────────────────────────────────────────────────────

func TestRespond_ExhaustedRetriesYieldsError(t *testing.T) {
	down := &downProvider{}
	noWait := providers.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	client := providers.NewRetryingClient(down, 3, time.Second, noWait)

	evs := collectAll(New(client, providers.ChatOptions{}, nil))
	if len(evs) != 1 || evs[0].Kind != EventError {
		t.Fatalf("expected a single error event, got %v", kinds(evs))
	}
	var exhausted *providers.ExhaustedRetriesError
	if !errors.As(evs[0].Err, &exhausted) {
		t.Fatalf("expected ExhaustedRetriesError, got %v", evs[0].Err)
	}
	if down.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", down.calls)
	}
}

func TestRespond_MergeConflictYieldsError(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{
		{Extra: map[string]any{"meta": "x"}},
		{Extra: map[string]any{"meta": map[string]any{"y": "z"}}},
	})
	evs := collectAll(New(p, providers.ChatOptions{}, nil))

	last := evs[len(evs)-1]
	var conflict *stream.MergeConflictError
	if last.Kind != EventError || !errors.As(last.Err, &conflict) {
		t.Fatalf("expected merge conflict error event, got %v %v", last.Kind, last.Err)
	}
}

func TestRespond_CancelledContext(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{{Message: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := New(p, providers.ChatOptions{}, nil).Collect(ctx, "", schema.NewMessages(), nil)
	if ev.Kind != EventError || !errors.Is(ev.Err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v %v", ev.Kind, ev.Err)
	}
}

func TestRespond_ConsumerStopsEarly(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{{Message: "a"}, {Message: "b"}})
	r := New(p, providers.ChatOptions{}, nil)

	n := 0
	for range r.Respond(context.Background(), "", schema.NewMessages()) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after one event, got %d", n)
	}
}

func TestCollect_ForwardsDeltas(t *testing.T) {
	p := providers.NewScriptedProvider("m", []stream.Delta{{Message: "a"}, {Message: "b"}})
	var seen []string
	ev := New(p, providers.ChatOptions{}, nil).Collect(context.Background(), "", schema.NewMessages(), func(d stream.Delta) {
		seen = append(seen, d.Message)
	})
	if ev.Kind != EventPause {
		t.Fatalf("expected pause, got %v", ev.Kind)
	}
	if diff := cmp.Diff([]string{"a", "b"}, seen); diff != "" {
		t.Errorf("deltas (-want +got):\n%s", diff)
	}
}
