package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/companion/internal/bus"
	"github.com/crystaldolphin/companion/internal/responder"
	"github.com/crystaldolphin/companion/internal/schema"
	"github.com/crystaldolphin/companion/internal/session"
	"github.com/crystaldolphin/companion/internal/shared/llmutils"
	"github.com/crystaldolphin/companion/internal/stream"
	"github.com/crystaldolphin/companion/internal/tasks"
)

// emitFunc receives everything a turn wants to show the user.
type emitFunc func(kind bus.OutboundKind, content string)

// Loop is the conversational engine. It reads InboundMessages from the bus,
// answers them in one shared conversation, and speaks up on its own when
// background tasks have something to report.
//
// Messages are handled one at a time on the Run goroutine.
type Loop struct {
	bus        bus.Bus
	sessions   *session.Manager
	sess       *session.Session
	dispatcher *Dispatcher
	scheduler  *tasks.Scheduler
	responder  *responder.Responder
	executor   *Executor
	prompts    *PromptBuilder
	settings   Settings
	logger     *slog.Logger

	// Run goroutine only.
	channel bus.Channel
	chatID  string
	pending *schema.Message // code waiting for the user's approval
}

// NewLoop creates a Loop bound to sess. executor may be nil.
func NewLoop(
	b bus.Bus,
	sessions *session.Manager,
	sess *session.Session,
	dispatcher *Dispatcher,
	resp *responder.Responder,
	executor *Executor,
	prompts *PromptBuilder,
	settings Settings,
	logger *slog.Logger,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		bus:        b,
		sessions:   sessions,
		sess:       sess,
		dispatcher: dispatcher,
		scheduler:  dispatcher.Scheduler(),
		responder:  resp,
		executor:   executor,
		prompts:    prompts,
		settings:   settings.withDefaults(),
		logger:     logger,
	}
}

// Session returns the conversation the loop speaks in.
func (l *Loop) Session() *session.Session { return l.sess }

// Run processes inbound messages and task responses until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("agent: loop started", "session", l.sess.Key)

	for {
		select {
		case msg := <-l.bus.InboundChan():
			l.handle(ctx, msg, l.publisher(ctx, msg.Channel, msg.ChatID))
		case <-l.scheduler.Responses():
			l.proactive(ctx)
		case <-ctx.Done():
			l.logger.Info("agent: loop stopping")
			return ctx.Err()
		}
	}
}

// ProcessDirect handles one message outside the bus (CLI -m) and returns
// the reply text. Streamed deltas are dropped.
func (l *Loop) ProcessDirect(ctx context.Context, content string) string {
	var reply []string
	msg := bus.NewInboundMessage(bus.ChannelCLI, "user", bus.ChatDirect, content)
	l.handle(ctx, msg, func(kind bus.OutboundKind, text string) {
		if kind != bus.OutboundDelta && text != "" {
			reply = append(reply, text)
		}
	})
	return strings.Join(reply, "\n")
}

func (l *Loop) publisher(ctx context.Context, channel bus.Channel, chatID string) emitFunc {
	return func(kind bus.OutboundKind, content string) {
		out := bus.NewOutboundMessage(kind, channel, chatID, content)
		if err := l.bus.PublishOutbound(ctx, out); err != nil {
			l.logger.Debug("agent: outbound dropped", "kind", kind, "err", err)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage, emit emitFunc) {
	if msg.Kind == bus.InboundSpeaking {
		l.sess.SetSpeaking(msg.Speaking)
		if !msg.Speaking {
			l.scheduler.Notify()
			l.proactive(ctx)
		}
		return
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}
	l.channel, l.chatID = msg.Channel, msg.ChatID

	l.logger.Info("agent: processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content", llmutils.Truncate(content, 80),
	)

	if l.handleSlashCommand(content, emit) {
		return
	}

	l.sess.AddUser(content)
	l.save()
	// Give queued tasks a look at the new message before we answer.
	l.scheduler.Notify()

	if l.pending != nil {
		pending := *l.pending
		l.pending = nil
		if isApproval(content) {
			l.runApproved(ctx, pending, emit)
		}
	}

	l.turn(ctx, emit)
}

// proactive runs an unprompted turn when tasks left response tokens and the
// assistant is not already speaking.
func (l *Loop) proactive(ctx context.Context) {
	if l.channel == "" || l.sess.Speaking() || !l.scheduler.PendingResponses() {
		return
	}
	l.logger.Info("agent: proactive turn", "channel", l.channel)
	l.turn(ctx, l.publisher(ctx, l.channel, l.chatID))
}

// turn runs model exchanges until the model pauses, an error occurs, or
// code needs approval. The responding flag is held for the whole turn.
func (l *Loop) turn(ctx context.Context, emit emitFunc) {
	l.sess.SetResponding(true)
	defer func() {
		l.sess.SetResponding(false)
		l.save()
		l.scheduler.Notify()
	}()

	for step := 1; ; step++ {
		system := l.prompts.Conversation(l.scheduler.CollectResponses())
		ev := l.responder.Collect(ctx, system, l.sess.History(l.settings.MemoryWindow), func(d stream.Delta) {
			if d.Message != "" {
				emit(bus.OutboundDelta, d.Message)
			}
		})

		switch ev.Kind {
		case responder.EventError:
			emit(bus.OutboundNotice, "Sorry, I couldn't reach the model: "+ev.Err.Error())
			return

		case responder.EventConfirmExecution:
			msg := schema.NewAssistantMessage(llmutils.StripThink(ev.Delta.Message))
			msg.Language, msg.Code = ev.Language, ev.Code

			if l.executor == nil || !l.executor.Supports(ev.Language) {
				msg.Output = fmt.Sprintf("Error: cannot execute %q code here", ev.Language)
				l.sess.Add(msg)
				emit(bus.OutboundReply, llmutils.StringOrDefault(msg.Content, msg.Output))
				return
			}
			if !l.settings.AutoRunCode {
				l.sess.Add(msg)
				l.pending = &msg
				emit(bus.OutboundReply, approvalPrompt(msg))
				return
			}
			if step > l.settings.TaskMaxSteps {
				l.sess.Add(msg)
				emit(bus.OutboundNotice, "Stopped after too many code steps.")
				return
			}
			if msg.Content != "" {
				emit(bus.OutboundReply, msg.Content)
			}
			if !l.execute(ctx, &msg, emit) {
				return
			}
			l.sess.Add(msg)

		default:
			text := llmutils.StripThink(ev.Delta.Message)
			if text == "" {
				return
			}
			l.sess.AddAssistant(text)
			l.logger.Info("agent: response", "channel", l.channel, "length", len(text))
			emit(bus.OutboundReply, text)
			return
		}
	}
}

// runApproved executes code the user just approved and records the result.
func (l *Loop) runApproved(ctx context.Context, msg schema.Message, emit emitFunc) {
	run := schema.NewAssistantMessage("Running the approved code.")
	run.Language, run.Code = msg.Language, msg.Code
	if l.execute(ctx, &run, emit) {
		l.sess.Add(run)
	}
}

// execute runs msg's code and stores the output on it. It reports false when
// ctx ended.
func (l *Loop) execute(ctx context.Context, msg *schema.Message, emit emitFunc) bool {
	emit(bus.OutboundNotice, "running "+llmutils.CodeHint(msg.Language, msg.Code))
	out, err := l.executor.Run(ctx, msg.Language, msg.Code)
	if err != nil {
		l.logger.Warn("agent: execution aborted", "err", err)
		return false
	}
	msg.Output = out
	return true
}

func (l *Loop) save() {
	if l.sessions == nil {
		return
	}
	if err := l.sessions.Save(l.sess); err != nil {
		l.logger.Warn("agent: session save failed", "key", l.sess.Key, "err", err)
	}
}

// handleSlashCommand runs a known slash command and reports whether content
// was one.
func (l *Loop) handleSlashCommand(content string, emit emitFunc) bool {
	cmd, arg, _ := strings.Cut(content, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/task":
		if arg == "" {
			emit(bus.OutboundNotice, "usage: /task <objective>")
			return true
		}
		if t, ok := l.dispatcher.Submit(arg, ""); ok {
			emit(bus.OutboundNotice, fmt.Sprintf("Task queued (%s).", t.Fingerprint()))
		} else {
			emit(bus.OutboundNotice, "That task is already queued.")
		}
	case "/tasks":
		emit(bus.OutboundNotice, formatPending(l.scheduler.Pending()))
	case "/new":
		l.sess.Clear()
		l.pending = nil
		l.save()
		emit(bus.OutboundNotice, "New conversation started.")
	case "/help":
		emit(bus.OutboundNotice, "companion commands:\n"+
			"/task <objective> — Work on something in the background\n"+
			"/tasks — List background tasks\n"+
			"/new — Start a new conversation\n"+
			"/help — Show available commands")
	default:
		return false
	}
	return true
}

func formatPending(infos []tasks.TaskInfo) string {
	if len(infos) == 0 {
		return "No background tasks."
	}
	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "- [%s] %s (%s)", info.State, llmutils.Truncate(info.Objective, 60), info.Fingerprint)
		if info.Failures > 0 {
			fmt.Fprintf(&sb, ", %d failures", info.Failures)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func approvalPrompt(msg schema.Message) string {
	var sb strings.Builder
	if msg.Content != "" {
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "I'd like to run this %s code:\n```%s\n%s\n```\nShall I go ahead? (yes/no)",
		msg.Language, msg.Language, msg.Code)
	return sb.String()
}

func isApproval(s string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!")) {
	case "y", "yes", "ok", "okay", "sure", "go ahead", "run it", "do it":
		return true
	}
	return false
}
