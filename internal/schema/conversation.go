package schema

// ConversationState is a point-in-time view of a conversation, taken under
// one lock so its three fields agree with each other.
type ConversationState struct {
	LastRole Role
	LastID   string
	Speaking bool
}

// Busy reports whether background work must wait: an assistant turn is
// being produced, or the assistant spoke last.
func (s ConversationState) Busy() bool {
	return s.Speaking || s.LastRole == RoleAssistant
}
