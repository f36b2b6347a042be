// Package dependency wires core companion services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/dig"

	"github.com/crystaldolphin/companion/internal/agent"
	"github.com/crystaldolphin/companion/internal/bus"
	"github.com/crystaldolphin/companion/internal/config"
	"github.com/crystaldolphin/companion/internal/cron"
	"github.com/crystaldolphin/companion/internal/heartbeat"
	"github.com/crystaldolphin/companion/internal/objectives"
	"github.com/crystaldolphin/companion/internal/providers"
	"github.com/crystaldolphin/companion/internal/responder"
	"github.com/crystaldolphin/companion/internal/session"
	"github.com/crystaldolphin/companion/internal/tasks"
)

// MainSession is the key of the single shared conversation.
const MainSession = "companion:main"

// Options adjust how the container is built.
type Options struct {
	// DryRun swaps the configured provider for a ScriptedProvider.
	DryRun bool
	// CronStorePath overrides config.CronStorePath().
	CronStorePath string
	Logger        *slog.Logger
}

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   providers.Provider
	msgBus     *bus.MessageBus
	sessions   *session.Manager
	sess       *session.Session
	scheduler  *tasks.Scheduler
	dispatcher *agent.Dispatcher
	loop       *agent.Loop
	cronSvc    *cron.Service
	heartbeat  *heartbeat.Service
	inbox      *objectives.Inbox
	templates  *objectives.Loader
}

func (c *Container) Config() *config.Config        { return c.cfg }
func (c *Container) Logger() *slog.Logger          { return c.logger }
func (c *Container) Provider() providers.Provider  { return c.provider }
func (c *Container) MessageBus() *bus.MessageBus   { return c.msgBus }
func (c *Container) Sessions() *session.Manager    { return c.sessions }
func (c *Container) Session() *session.Session     { return c.sess }
func (c *Container) Scheduler() *tasks.Scheduler   { return c.scheduler }
func (c *Container) Dispatcher() *agent.Dispatcher { return c.dispatcher }
func (c *Container) Loop() *agent.Loop             { return c.loop }
func (c *Container) CronService() *cron.Service    { return c.cronSvc }
func (c *Container) Heartbeat() *heartbeat.Service { return c.heartbeat }
func (c *Container) Inbox() *objectives.Inbox      { return c.inbox }
func (c *Container) Templates() *objectives.Loader { return c.templates }

// New builds and wires all core services from cfg.
func New(cfg *config.Config, opts Options) (*Container, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := dig.New()

	constructors := []any{
		func() *config.Config { return cfg },
		func() Options { return opts },
		func() *slog.Logger { return opts.Logger },
		newProvider,
		newResponder,
		newMessageBus,
		newSessionManager,
		newSession,
		newScheduler,
		newMemory,
		newExecutor,
		newPromptBuilder,
		newSettings,
		newDispatcher,
		newLoop,
		newCronService,
		newHeartbeat,
		newInbox,
		newTemplates,
	}
	for _, fn := range constructors {
		if err := d.Provide(fn); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		logger *slog.Logger,
		provider providers.Provider,
		msgBus *bus.MessageBus,
		sessions *session.Manager,
		sess *session.Session,
		scheduler *tasks.Scheduler,
		dispatcher *agent.Dispatcher,
		loop *agent.Loop,
		cronSvc *cron.Service,
		hb *heartbeat.Service,
		inbox *objectives.Inbox,
		templates *objectives.Loader,
	) {
		result = &Container{
			cfg:        cfg,
			logger:     logger,
			provider:   provider,
			msgBus:     msgBus,
			sessions:   sessions,
			sess:       sess,
			scheduler:  scheduler,
			dispatcher: dispatcher,
			loop:       loop,
			cronSvc:    cronSvc,
			heartbeat:  hb,
			inbox:      inbox,
			templates:  templates,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newProvider(cfg *config.Config, opts Options, logger *slog.Logger) (providers.Provider, error) {
	var inner providers.Provider
	if opts.DryRun {
		inner = providers.NewScriptedProvider("dry-run")
	} else {
		if !cfg.Ready() {
			return nil, fmt.Errorf("no API key configured for model %q: edit %s", cfg.Provider.Model, config.ConfigPath())
		}
		e := cfg.ResolveEndpoint()
		inner = providers.NewOpenAIProvider(cfg.Provider.APIKey, e.APIBase, cfg.Provider.Model, cfg.Provider.ExtraHeaders)
	}
	return providers.NewRetryingClient(inner, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay(),
		providers.WithRetryLogger(logger)), nil
}

func newResponder(cfg *config.Config, p providers.Provider, logger *slog.Logger) *responder.Responder {
	return responder.New(p, providers.ChatOptions{
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	}, logger)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newSessionManager(cfg *config.Config, logger *slog.Logger) (*session.Manager, error) {
	return session.NewManager(cfg.WorkspacePath(), logger)
}

func newSession(m *session.Manager) *session.Session {
	return m.GetOrCreate(MainSession)
}

func newScheduler(cfg *config.Config, sess *session.Session, logger *slog.Logger) *tasks.Scheduler {
	return tasks.NewScheduler(sess,
		tasks.WithPollInterval(cfg.Scheduler.PollInterval()),
		tasks.WithLogger(logger),
	)
}

func newMemory(cfg *config.Config) (*agent.Memory, error) {
	return agent.NewMemory(cfg.WorkspacePath())
}

func newExecutor(cfg *config.Config) *agent.Executor {
	return agent.NewExecutor(cfg.WorkspacePath(), cfg.Exec.TimeoutS, cfg.Exec.RestrictToWorkspace)
}

func newPromptBuilder(cfg *config.Config, mem *agent.Memory) *agent.PromptBuilder {
	persona := tasks.Persona{CharName: cfg.Agent.Persona.CharName, Verb: cfg.Agent.Persona.Verb}
	return agent.NewPromptBuilder(cfg.WorkspacePath(), cfg.Agent.SystemPrompt, persona, mem)
}

func newSettings(cfg *config.Config) agent.Settings {
	return agent.Settings{
		MemoryWindow:    cfg.Agent.MemoryWindow,
		AutoRunCode:     cfg.Agent.AutoRunCode,
		TaskMaxSteps:    cfg.Agent.TaskMaxSteps,
		TaskMaxAttempts: cfg.Scheduler.TaskMaxAttempts,
	}
}

func newDispatcher(
	scheduler *tasks.Scheduler,
	resp *responder.Responder,
	exec *agent.Executor,
	prompts *agent.PromptBuilder,
	sess *session.Session,
	mem *agent.Memory,
	settings agent.Settings,
	logger *slog.Logger,
) *agent.Dispatcher {
	d := agent.NewDispatcher(scheduler, resp, exec, prompts, sess, mem, settings, logger)
	d.SetPageReader(objectives.NewPageReader(0))
	return d
}

func newLoop(
	b *bus.MessageBus,
	sessions *session.Manager,
	sess *session.Session,
	dispatcher *agent.Dispatcher,
	resp *responder.Responder,
	exec *agent.Executor,
	prompts *agent.PromptBuilder,
	settings agent.Settings,
	logger *slog.Logger,
) *agent.Loop {
	return agent.NewLoop(b, sessions, sess, dispatcher, resp, exec, prompts, settings, logger)
}

// newCronService submits each firing job's objective.
func newCronService(opts Options, dispatcher *agent.Dispatcher, logger *slog.Logger) *cron.Service {
	path := opts.CronStorePath
	if path == "" {
		path = config.CronStorePath()
	}
	svc := cron.NewService(path, logger)
	svc.OnJob(func(_ context.Context, job cron.Job) error {
		logger.Info("cron: job fired", "id", job.ID, "name", job.Name)
		dispatcher.Submit(job.Payload.Objective, job.Payload.Fingerprint, job.Payload.Pages...)
		return nil
	})
	return svc
}

func newHeartbeat(cfg *config.Config, dispatcher *agent.Dispatcher, logger *slog.Logger) *heartbeat.Service {
	return heartbeat.NewService(cfg.WorkspacePath(), func(_ context.Context, objective string) error {
		dispatcher.Submit(objective, "")
		return nil
	}, cfg.Heartbeat.Interval(), logger)
}

func newInbox(cfg *config.Config) *objectives.Inbox {
	return objectives.NewInbox(cfg.WorkspacePath())
}

func newTemplates(cfg *config.Config) *objectives.Loader {
	return objectives.NewLoader(cfg.WorkspacePath())
}

// DrainInbox submits every objective waiting in the inbox and returns how
// many were queued.
func (c *Container) DrainInbox() int {
	entries, err := c.inbox.Drain()
	if err != nil {
		c.logger.Warn("inbox: drain failed", "err", err)
	}
	queued := 0
	for _, e := range entries {
		if _, ok := c.dispatcher.Submit(e.Objective, e.Fingerprint, e.Pages...); ok {
			queued++
		}
	}
	if queued > 0 {
		c.logger.Info("inbox: objectives queued", "count", queued)
	}
	return queued
}
