package channels

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/companion/internal/bus"
)

// Manager owns the enabled channels and routes outbound messages to them.
type Manager struct {
	b        bus.Bus
	channels map[bus.Channel]Channel
	logger   *slog.Logger
}

// NewManager creates a Manager with the given channels registered.
func NewManager(b bus.Bus, logger *slog.Logger, chs ...Channel) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{b: b, channels: make(map[bus.Channel]Channel), logger: logger}
	for _, ch := range chs {
		m.Register(ch)
	}
	return m
}

// Register adds ch, replacing any channel with the same name.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.logger.Info("channel: enabled", "name", ch.Name())
}

// EnabledChannels returns the names of all registered channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// StartAll starts every channel and dispatches outbound messages until ctx
// is cancelled. A channel that exits early is logged; the others keep
// running.
func (m *Manager) StartAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.dispatchOutbound(ctx)
		return nil
	})

	for name, ch := range m.channels {
		g.Go(func() error {
			m.logger.Info("channel: starting", "name", name)
			if err := ch.Start(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("channel: exited with error", "name", name, "err", err)
			}
			return nil
		})
	}

	<-ctx.Done()
	_ = g.Wait()
	return ctx.Err()
}

// dispatchOutbound routes each outbound message to its channel's Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.OutboundChan():
			ch, ok := m.channels[msg.Channel]
			if !ok {
				m.logger.Debug("channel: no route for outbound message", "channel", msg.Channel, "kind", msg.Kind)
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				m.logger.Warn("channel: send failed", "channel", msg.Channel, "kind", msg.Kind, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
