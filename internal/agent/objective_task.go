package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crystaldolphin/companion/internal/objectives"
	"github.com/crystaldolphin/companion/internal/responder"
	"github.com/crystaldolphin/companion/internal/schema"
	"github.com/crystaldolphin/companion/internal/shared/llmutils"
	"github.com/crystaldolphin/companion/internal/tasks"
)

// HistoryReader is the conversation view a background task reads.
type HistoryReader interface {
	History(n int) schema.Messages
}

// Conversation is what a Dispatcher needs: the history tasks read and a way
// to note queued work so the scheduler sees the conversation move on.
type Conversation interface {
	HistoryReader
	AddSystem(content string) schema.Message
}

// PageReader fetches the readable text of a page an objective refers to.
type PageReader interface {
	Read(ctx context.Context, url string) (objectives.Page, error)
}

// ObjectiveTask is the tasks.Runner behind every objective. Each run is one
// model exchange: a plain answer finishes the task and is reported with an
// [INF] token; a code request is executed (when allowed) and the task waits
// for the conversation to move on before its next step.
type ObjectiveTask struct {
	objective string
	pages     []string
	reader    PageReader
	responder *responder.Responder
	executor  *Executor
	prompts   *PromptBuilder
	conv      HistoryReader
	memory    *Memory
	settings  Settings
	logger    *slog.Logger

	// Only touched from the scheduler goroutine.
	scratch schema.Messages
	steps   int
}

// Run implements tasks.Runner.
func (o *ObjectiveTask) Run(ctx context.Context, tick tasks.Tick) (bool, error) {
	if o.steps >= o.settings.TaskMaxSteps {
		tick.Respond(tasks.Token(tasks.TagInform,
			fmt.Sprintf("I stopped working on %q after %d steps without finishing.", o.objective, o.steps)))
		o.remember("gave up: " + o.objective)
		return true, nil
	}
	if o.steps == 0 {
		o.readPages(ctx)
	}
	o.steps++

	history := o.conv.History(o.settings.MemoryWindow)
	history.Append(o.scratch)
	system := o.prompts.Task(o.objective, o.steps, o.settings.TaskMaxSteps)

	ev := o.responder.Collect(ctx, system, history, nil)
	switch ev.Kind {
	case responder.EventError:
		return false, fmt.Errorf("objective step %d: %w", o.steps, ev.Err)

	case responder.EventConfirmExecution:
		msg := schema.NewAssistantMessage(llmutils.StripThink(ev.Delta.Message))
		msg.Language, msg.Code = ev.Language, ev.Code

		if o.executor == nil || !o.settings.AutoRunCode || !o.executor.Supports(ev.Language) {
			tick.Respond(tasks.Token(tasks.TagQuestion,
				fmt.Sprintf("May I run %s for the task %q?", llmutils.CodeHint(ev.Language, ev.Code), o.objective)))
			return true, nil
		}

		out, err := o.executor.Run(ctx, ev.Language, ev.Code)
		if err != nil {
			return false, fmt.Errorf("execute %s: %w", ev.Language, err)
		}
		msg.Output = out
		o.scratch.Add(msg)
		o.logger.Info("task: executed code",
			"objective", llmutils.Truncate(o.objective, 60),
			"step", o.steps,
			"hint", llmutils.CodeHint(ev.Language, ev.Code),
		)
		return false, nil

	default:
		result := llmutils.StripThink(ev.Delta.Message)
		if result != "" {
			tick.Respond(tasks.Token(tasks.TagInform, result))
		}
		o.remember(fmt.Sprintf("task %q: %s", o.objective, llmutils.StringOrDefault(result, "(no result)")))
		return true, nil
	}
}

// readPages adds every page as a system message ahead of the first step.
// Unreadable pages are noted so the model knows they are missing.
func (o *ObjectiveTask) readPages(ctx context.Context) {
	if len(o.pages) == 0 {
		return
	}
	if o.reader == nil {
		o.logger.Warn("task: pages ignored, no reader configured", "count", len(o.pages))
		return
	}
	for _, url := range o.pages {
		page, err := o.reader.Read(ctx, url)
		if err != nil {
			o.logger.Warn("task: page read failed", "url", url, "err", err)
			o.scratch.AddSystem(fmt.Sprintf("The page %s could not be read: %v", url, err))
			continue
		}
		o.logger.Debug("task: page read", "url", url, "extractor", page.Extractor, "chars", len(page.Text))
		o.scratch.AddSystem(page.Markdown())
	}
}

func (o *ObjectiveTask) remember(entry string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.AppendHistory(entry); err != nil {
		o.logger.Warn("task: history append failed", "err", err)
	}
}

// Dispatcher builds ObjectiveTasks and submits them to the scheduler.
type Dispatcher struct {
	scheduler *tasks.Scheduler
	responder *responder.Responder
	executor  *Executor
	prompts   *PromptBuilder
	conv      Conversation
	memory    *Memory
	settings  Settings
	logger    *slog.Logger
	reader    PageReader
}

// NewDispatcher creates a Dispatcher. executor and memory may be nil.
func NewDispatcher(
	scheduler *tasks.Scheduler,
	resp *responder.Responder,
	executor *Executor,
	prompts *PromptBuilder,
	conv Conversation,
	memory *Memory,
	settings Settings,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		scheduler: scheduler,
		responder: resp,
		executor:  executor,
		prompts:   prompts,
		conv:      conv,
		memory:    memory,
		settings:  settings.withDefaults(),
		logger:    logger,
	}
}

// SetPageReader sets the reader used for objective pages.
func (d *Dispatcher) SetPageReader(r PageReader) { d.reader = r }

// NewTask wraps objective in an ObjectiveTask without enqueuing it. pages
// are read before the first step.
func (d *Dispatcher) NewTask(objective, fingerprint string, pages ...string) *tasks.Task {
	runner := &ObjectiveTask{
		objective: objective,
		pages:     pages,
		reader:    d.reader,
		responder: d.responder,
		executor:  d.executor,
		prompts:   d.prompts,
		conv:      d.conv,
		memory:    d.memory,
		settings:  d.settings,
		logger:    d.logger,
		scratch:   schema.NewMessages(),
	}
	opts := []tasks.Option{tasks.WithMaxAttempts(d.settings.TaskMaxAttempts)}
	if fingerprint != "" {
		opts = append(opts, tasks.WithFingerprint(fingerprint))
	}
	return tasks.NewTask(objective, runner, opts...)
}

// Submit enqueues objective unless a live task already carries the same
// fingerprint. An empty fingerprint is derived from the objective.
//
// A queued task is noted in the conversation as a system message. That
// moves the last role off the assistant, so the scheduler's gate opens
// without waiting for the user to speak.
func (d *Dispatcher) Submit(objective, fingerprint string, pages ...string) (*tasks.Task, bool) {
	if fingerprint == "" {
		fingerprint = tasks.Fingerprint(objective)
	}
	t := d.NewTask(objective, fingerprint, pages...)
	if !d.scheduler.EnqueueUnique(t) {
		d.logger.Info("task: duplicate objective skipped", "fingerprint", fingerprint)
		return nil, false
	}
	d.conv.AddSystem("Background task queued: " + llmutils.Truncate(objective, 120))
	d.scheduler.Notify()
	return t, true
}

// Scheduler returns the scheduler tasks are submitted to.
func (d *Dispatcher) Scheduler() *tasks.Scheduler { return d.scheduler }
