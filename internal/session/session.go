package session

import (
	"sync"
	"time"

	"github.com/crystaldolphin/companion/internal/schema"
)

// Session holds one conversation: its messages, metadata and whether the
// assistant is currently speaking. Speaking covers two independent flags:
// playback reported by a front end (SetSpeaking) and a model turn in
// progress (SetResponding). All methods are safe for concurrent use.
type Session struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	mu         sync.Mutex
	messages   schema.Messages
	speaking   bool
	responding bool
}

// New creates an empty session.
func New(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
		messages:  schema.NewMessages(),
	}
}

// Add appends msg and returns it.
func (s *Session) Add(msg schema.Message) schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages.Add(msg)
	s.UpdatedAt = time.Now()
	return msg
}

// AddUser appends a user message.
func (s *Session) AddUser(content string) schema.Message {
	return s.Add(schema.NewUserMessage(content))
}

// AddAssistant appends an assistant message.
func (s *Session) AddAssistant(content string) schema.Message {
	return s.Add(schema.NewAssistantMessage(content))
}

// AddSystem appends a system note, e.g. "cron fired: ...".
func (s *Session) AddSystem(content string) schema.Message {
	return s.Add(schema.NewSystemMessage(content))
}

// SetSpeaking records whether a front end is playing the assistant's output.
func (s *Session) SetSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

// SetResponding records whether a model turn is producing output.
func (s *Session) SetResponding(v bool) {
	s.mu.Lock()
	s.responding = v
	s.mu.Unlock()
}

// Speaking reports whether either playback or a turn is in progress.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking || s.responding
}

// State returns a consistent snapshot of the fields the task scheduler
// gates on. An empty session reports an empty role and id.
func (s *Session) State() schema.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := schema.ConversationState{Speaking: s.speaking || s.responding}
	if last, ok := s.messages.Last(); ok {
		st.LastRole = last.Role
		st.LastID = last.ID
	}
	return st
}

// History returns a copy of the last n messages; n <= 0 means all.
func (s *Session) History(n int) schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return s.messages.Clone()
	}
	return s.messages.Tail(n)
}

// Snapshot returns a copy of every message.
func (s *Session) Snapshot() schema.Messages { return s.History(0) }

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Len()
}

// Clear drops all messages and both speaking flags.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = schema.NewMessages()
	s.speaking = false
	s.responding = false
	s.UpdatedAt = time.Now()
}
