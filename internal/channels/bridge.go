package channels

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/companion/internal/bus"
	"github.com/crystaldolphin/companion/internal/config"
)

// ErrBridgeNotConnected is returned by Send while no websocket is open.
var ErrBridgeNotConnected = errors.New("bridge: not connected")

const bridgeReconnectDelay = 5 * time.Second

// bridgeFrame is the JSON frame exchanged with the voice front end.
//
// Inbound types: "message", "speaking", "status", "error".
// Outbound types: "auth", "delta", "reply", "notice".
type bridgeFrame struct {
	Type     string `json:"type"`
	Sender   string `json:"sender,omitempty"`
	Chat     string `json:"chat,omitempty"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content,omitempty"`
	Text     string `json:"text,omitempty"`
	Speaking bool   `json:"speaking,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	Token    string `json:"token,omitempty"`
	ID       string `json:"id,omitempty"`
}

// BridgeChannel connects to the voice front end over a websocket. The front
// end transcribes the user, speaks the assistant's replies, and reports when
// playback starts and stops.
type BridgeChannel struct {
	Base
	cfg            config.BridgeConfig
	reconnectDelay time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewBridgeChannel creates a BridgeChannel.
func NewBridgeChannel(cfg config.BridgeConfig, b bus.Bus, logger *slog.Logger) *BridgeChannel {
	return &BridgeChannel{
		Base:           NewBase(bus.ChannelBridge, b, cfg.AllowFrom, logger),
		cfg:            cfg,
		reconnectDelay: bridgeReconnectDelay,
	}
}

// Start connects and reconnects until ctx is cancelled.
func (w *BridgeChannel) Start(ctx context.Context) error {
	url := w.cfg.URL
	if url == "" {
		url = "ws://localhost:3001"
	}
	w.logger.Info("bridge: connecting", "url", url)

	for {
		if err := w.connectOnce(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("bridge: connection lost, reconnecting", "delay", w.reconnectDelay, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *BridgeChannel) connectOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	w.setConn(conn)
	defer func() {
		w.setConn(nil)
		conn.Close()
	}()

	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w.logger.Info("bridge: connected")

	if w.cfg.Token != "" {
		if err := w.write(bridgeFrame{Type: "auth", Token: w.cfg.Token}); err != nil {
			return err
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleFrame(ctx, raw)
	}
}

func (w *BridgeChannel) handleFrame(ctx context.Context, raw []byte) {
	var f bridgeFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		w.logger.Debug("bridge: bad frame", "err", err)
		return
	}
	chat := f.Chat
	if chat == "" {
		chat = bus.ChatDirect
	}

	switch f.Type {
	case "message":
		sender := f.Sender
		if sender == "" {
			sender = chat
		}
		var meta map[string]any
		if f.ID != "" {
			meta = map[string]any{"message_id": f.ID}
		}
		w.HandleMessage(ctx, sender, chat, f.Content, meta)
	case "speaking":
		w.HandleSpeaking(ctx, chat, f.Speaking)
	case "status":
		w.logger.Info("bridge: status", "status", f.Status)
	case "error":
		w.logger.Error("bridge: front end error", "error", f.Error)
	}
}

// Send forwards an outbound message as a delta, reply or notice frame.
func (w *BridgeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	return w.write(bridgeFrame{Type: msg.Kind.String(), To: msg.ChatID, Text: msg.Content})
}

func (w *BridgeChannel) write(f bridgeFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrBridgeNotConnected
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *BridgeChannel) setConn(c *websocket.Conn) {
	w.mu.Lock()
	w.conn = c
	w.mu.Unlock()
}

// Connected reports whether a websocket is currently open.
func (w *BridgeChannel) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}
