package bus

import "time"

// InboundKind tells the agent what an inbound message carries.
type InboundKind int

const (
	// InboundText is user input.
	InboundText InboundKind = iota
	// InboundSpeaking reports that the front end started or stopped playing
	// assistant speech; see InboundMessage.Speaking.
	InboundSpeaking
)

// InboundMessage is a message received from a channel.
type InboundMessage struct {
	Kind      InboundKind
	Channel   Channel
	SenderID  string
	ChatID    string
	Content   string
	Speaking  bool
	Timestamp time.Time
	Metadata  map[string]any
}

// NewInboundMessage creates a text InboundMessage stamped with the current time.
func NewInboundMessage(channel Channel, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		Kind:      InboundText,
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSpeakingMessage creates an InboundSpeaking message.
func NewSpeakingMessage(channel Channel, chatID string, speaking bool) InboundMessage {
	return InboundMessage{
		Kind:      InboundSpeaking,
		Channel:   channel,
		ChatID:    chatID,
		Speaking:  speaking,
		Timestamp: time.Now(),
	}
}

// SessionKey returns the key used to look up the conversation session.
func (m InboundMessage) SessionKey() string {
	return RoutingKey(m.Channel, m.ChatID)
}

// Preview returns a short snippet of the content for logging.
func (m InboundMessage) Preview() string {
	preview := m.Content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}

// OutboundKind tells a channel how to render an outbound message.
type OutboundKind int

const (
	// OutboundReply is a complete assistant turn.
	OutboundReply OutboundKind = iota
	// OutboundDelta is a streamed fragment of a reply in progress.
	OutboundDelta
	// OutboundNotice is a status line, e.g. command output or errors.
	OutboundNotice
)

func (k OutboundKind) String() string {
	switch k {
	case OutboundReply:
		return "reply"
	case OutboundDelta:
		return "delta"
	case OutboundNotice:
		return "notice"
	}
	return "unknown"
}

// OutboundMessage is sent back through a channel.
type OutboundMessage struct {
	Kind     OutboundKind
	Channel  Channel
	ChatID   string
	Content  string
	Metadata map[string]any
}

// NewOutboundMessage creates an OutboundMessage.
func NewOutboundMessage(kind OutboundKind, channel Channel, chatID, content string) OutboundMessage {
	return OutboundMessage{Kind: kind, Channel: channel, ChatID: chatID, Content: content}
}
