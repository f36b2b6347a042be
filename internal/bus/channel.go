package bus

import "strings"

// Channel names a message source or destination.
type Channel string

const (
	ChannelCLI       Channel = "cli"
	ChannelBridge    Channel = "bridge"
	ChannelCron      Channel = "cron"
	ChannelHeartbeat Channel = "heartbeat"
	ChannelSystem    Channel = "system"
)

// ChatDirect is the chat id used by single-conversation channels.
const ChatDirect = "direct"

// RoutingKey joins channel and chat id into a session key.
func RoutingKey(channel Channel, chatID string) string {
	if chatID == "" {
		return string(channel)
	}
	return string(channel) + ":" + chatID
}

// ParseRoutingKey splits a routing key into channel and chat id.
func ParseRoutingKey(key string) (channel Channel, chatID string) {
	if i := strings.Index(key, ":"); i >= 0 {
		return Channel(key[:i]), key[i+1:]
	}
	return Channel(key), ""
}
