// Package tasks schedules background agent work against a live
// conversation: a queue of Tasks, one execution loop, and the gate that keeps
// tasks from running while the assistant is speaking.
package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/crystaldolphin/companion/internal/schema"
)

// State is the lifecycle position of a Task.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Tick is what a Runner sees during one execution: the conversation snapshot
// the scheduler took for this tick and a sink for response tokens.
type Tick struct {
	State   schema.ConversationState
	respond func(token string)
}

// NewTick builds a Tick outside the scheduler, e.g. for running a task
// directly in tests.
func NewTick(state schema.ConversationState, respond func(string)) Tick {
	return Tick{State: state, respond: respond}
}

// Respond records a response token such as "[INF] the build passed".
func (t Tick) Respond(token string) {
	if t.respond != nil && token != "" {
		t.respond(token)
	}
}

// Runner is the unit of work behind a Task. It returns true once the task
// has nothing more to do. Returning false keeps the task queued until the
// conversation moves on.
type Runner interface {
	Run(ctx context.Context, tick Tick) (finished bool, err error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, tick Tick) (bool, error)

func (f RunnerFunc) Run(ctx context.Context, tick Tick) (bool, error) { return f(ctx, tick) }

// Task is one piece of scheduled work. Objective and fingerprint never
// change; cursor and state are only written by the Scheduler.
type Task struct {
	id          string
	objective   string
	fingerprint string
	runner      Runner
	maxAttempts int

	mu        sync.Mutex
	cursor    string
	hasCursor bool
	state     State
	failures  int
	lastErr   error
}

// Option customises a Task.
type Option func(*Task)

// WithFingerprint overrides the fingerprint derived from the objective.
func WithFingerprint(fp string) Option {
	return func(t *Task) { t.fingerprint = fp }
}

// WithMaxAttempts lets a failing task run again once the conversation moves
// on. The default of 1 drops the task on its first error.
func WithMaxAttempts(n int) Option {
	return func(t *Task) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// NewTask creates a queued Task.
func NewTask(objective string, runner Runner, opts ...Option) *Task {
	t := &Task{
		id:          uuid.NewString(),
		objective:   objective,
		fingerprint: Fingerprint(objective),
		runner:      runner,
		maxAttempts: 1,
		state:       StateQueued,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Fingerprint derives the stable identity of an objective.
func Fingerprint(objective string) string {
	sum := sha256.Sum256([]byte(objective))
	return hex.EncodeToString(sum[:8])
}

func (t *Task) ID() string          { return t.id }
func (t *Task) Objective() string   { return t.objective }
func (t *Task) Fingerprint() string { return t.fingerprint }
func (t *Task) Runner() Runner      { return t.runner }

// Cursor returns the last conversation message id the task observed.
func (t *Task) Cursor() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor, t.hasCursor
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Failures returns how many runs ended in an error.
func (t *Task) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

// Err returns the error of the most recent failed run.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// seen reports whether the task already observed message id.
func (t *Task) seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasCursor && t.cursor == id
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// yield parks the task at id and marks it queued again.
func (t *Task) yield(id string) {
	t.mu.Lock()
	t.cursor = id
	t.hasCursor = true
	t.state = StateQueued
	t.mu.Unlock()
}

// fail records err and reports whether the task still has attempts left.
func (t *Task) fail(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	t.lastErr = err
	if t.failures < t.maxAttempts {
		return true
	}
	t.state = StateFailed
	return false
}

// TaskExecutionError wraps an error raised by a task's Runner.
type TaskExecutionError struct {
	TaskID      string
	Fingerprint string
	Err         error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Fingerprint, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }
