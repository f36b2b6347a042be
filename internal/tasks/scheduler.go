package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/crystaldolphin/companion/internal/schema"
)

// DefaultPollInterval is how often the loop re-checks the conversation.
const DefaultPollInterval = 50 * time.Millisecond

// Conversation is the read-only view of the conversation the scheduler
// gates on.
type Conversation interface {
	State() schema.ConversationState
}

// Ticker is the subset of *time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// TaskInfo is a read-only summary of a queued or running task.
type TaskInfo struct {
	ID          string
	Objective   string
	Fingerprint string
	State       State
	Cursor      string
	Failures    int
}

// Scheduler owns the task queue and the single loop that executes tasks.
//
// Enqueue, CollectResponses, ActiveTaskFingerprint, HasFingerprint, Pending
// and Notify are safe to call from any goroutine. Tick must only be called
// from one goroutine at a time; Run does that.
type Scheduler struct {
	conv      Conversation
	interval  time.Duration
	formatter *Formatter
	logger    *slog.Logger
	newTicker func(time.Duration) Ticker

	mu        sync.Mutex
	queue     []*Task
	draining  []*Task
	active    *Task
	responses map[string]struct{}

	wake   chan struct{}
	notify chan struct{}
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPollInterval sets the tick interval. Non-positive values are ignored.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the ticker factory, mainly for tests.
func WithTicker(fn func(time.Duration) Ticker) SchedulerOption {
	return func(s *Scheduler) { s.newTicker = fn }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithFormatter replaces the response formatter.
func WithFormatter(f *Formatter) SchedulerOption {
	return func(s *Scheduler) { s.formatter = f }
}

// NewScheduler creates a Scheduler reading conversation state from conv.
func NewScheduler(conv Conversation, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		conv:      conv,
		interval:  DefaultPollInterval,
		formatter: NewFormatter(),
		logger:    slog.Default(),
		newTicker: func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} },
		responses: make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
		notify:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue adds t to the queue. Duplicates are not rejected; use
// EnqueueUnique when that matters.
func (s *Scheduler) Enqueue(t *Task) { s.enqueue(t, false) }

// EnqueueUnique adds t unless a live task already carries its fingerprint.
// The check and the insert happen under one lock.
func (s *Scheduler) EnqueueUnique(t *Task) bool { return s.enqueue(t, true) }

func (s *Scheduler) enqueue(t *Task, unique bool) bool {
	s.mu.Lock()
	if unique && s.hasLiveLocked(t.Fingerprint()) {
		s.mu.Unlock()
		return false
	}
	t.setState(StateQueued)
	s.queue = append(s.queue, t)
	n := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug("scheduler: task enqueued", "id", t.ID(), "fingerprint", t.Fingerprint(), "queued", n)
	s.Notify()
	return true
}

// Notify wakes the loop before the next poll, e.g. after the conversation
// changed.
func (s *Scheduler) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Responses is signalled whenever a task records a new response token.
func (s *Scheduler) Responses() <-chan struct{} { return s.notify }

// Run ticks until ctx is cancelled. A task already running when ctx is
// cancelled sees the cancellation through its own ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler: started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C():
		case <-s.wake:
		}
		s.Tick(ctx)
	}
}

// Tick runs one pass of the loop and returns how many tasks were executed.
func (s *Scheduler) Tick(ctx context.Context) int {
	state := s.conv.State()
	if state.Busy() {
		return 0
	}

	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.draining = batch
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	tick := Tick{State: state, respond: s.addResponse}
	requeue := make([]*Task, 0, len(batch))
	ran := 0

	for _, t := range batch {
		if ctx.Err() != nil || t.seen(state.LastID) {
			requeue = append(requeue, t)
			continue
		}

		ran++
		finished, err := s.execute(ctx, t, tick)

		switch {
		case err != nil:
			execErr := &TaskExecutionError{TaskID: t.ID(), Fingerprint: t.Fingerprint(), Err: err}
			retry := t.fail(execErr)
			s.logger.Error("scheduler: task failed",
				"category", "task",
				"id", t.ID(),
				"fingerprint", t.Fingerprint(),
				"retry", retry,
				"err", err,
			)
			if retry {
				t.yield(state.LastID)
				requeue = append(requeue, t)
			}
		case finished:
			t.setState(StateDone)
			s.logger.Info("scheduler: task done", "id", t.ID(), "fingerprint", t.Fingerprint())
		default:
			t.yield(state.LastID)
			requeue = append(requeue, t)
		}
	}

	s.mu.Lock()
	s.queue = append(requeue, s.queue...)
	s.draining = nil
	s.active = nil
	s.mu.Unlock()

	return ran
}

// execute runs one task, converting a panic into an error.
func (s *Scheduler) execute(ctx context.Context, t *Task, tick Tick) (finished bool, err error) {
	s.mu.Lock()
	s.active = t
	s.mu.Unlock()
	t.setState(StateRunning)

	defer func() {
		if r := recover(); r != nil {
			finished, err = false, fmt.Errorf("panic: %v", r)
		}
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
	}()

	return t.runner.Run(ctx, tick)
}

func (s *Scheduler) addResponse(token string) {
	s.mu.Lock()
	s.responses[token] = struct{}{}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// CollectResponses drains the recorded response tokens and returns them as
// one instruction block, or "" when none are pending.
func (s *Scheduler) CollectResponses() string {
	s.mu.Lock()
	if len(s.responses) == 0 {
		s.mu.Unlock()
		return ""
	}
	tokens := make([]string, 0, len(s.responses))
	for tok := range s.responses {
		tokens = append(tokens, tok)
	}
	s.responses = make(map[string]struct{})
	s.mu.Unlock()

	return s.formatter.Format(tokens)
}

// PendingResponses reports whether tokens are waiting to be collected.
func (s *Scheduler) PendingResponses() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses) > 0
}

// ActiveTaskFingerprint returns the fingerprint of the running task, or "".
func (s *Scheduler) ActiveTaskFingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Fingerprint()
}

// HasFingerprint reports whether a live task (queued, or part of the tick
// in progress and not yet done) carries fp.
func (s *Scheduler) HasFingerprint(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLiveLocked(fp)
}

// hasLiveLocked is HasFingerprint with s.mu held.
func (s *Scheduler) hasLiveLocked(fp string) bool {
	for _, list := range [][]*Task{s.queue, s.draining} {
		for _, t := range list {
			if t.Fingerprint() != fp {
				continue
			}
			if st := t.State(); st != StateDone && st != StateFailed {
				return true
			}
		}
	}
	return false
}

// live returns queued tasks plus those of the current tick that have not
// reached a terminal state.
func (s *Scheduler) live() []*Task {
	s.mu.Lock()
	list := make([]*Task, 0, len(s.queue)+len(s.draining))
	list = append(list, s.queue...)
	list = append(list, s.draining...)
	s.mu.Unlock()

	out := list[:0]
	for _, t := range list {
		if st := t.State(); st == StateDone || st == StateFailed {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Len returns the number of queued tasks. Tasks taken by a tick in progress
// are not counted.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Pending returns summaries of the live tasks sorted by objective.
func (s *Scheduler) Pending() []TaskInfo {
	list := s.live()
	out := make([]TaskInfo, 0, len(list))
	for _, t := range list {
		cursor, _ := t.Cursor()
		out = append(out, TaskInfo{
			ID:          t.ID(),
			Objective:   t.Objective(),
			Fingerprint: t.Fingerprint(),
			State:       t.State(),
			Cursor:      cursor,
			Failures:    t.Failures(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Objective < out[j].Objective })
	return out
}
