// Package chat relays conversational turns to a chat-completion runtime and
// keeps the per-session history.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role labels a history entry.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Turn is one history entry.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session holds the ordered history of one conversation. It is created at
// session start and owned by whoever drives the conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu    sync.Mutex
	turns []Turn
	// turn is held by Exchange for a whole turn so concurrent turns on one
	// session cannot interleave their appends.
	turn sync.Mutex
}

// NewSession starts a session, seeding the greeting as the first ai turn
// when greeting is non-empty.
func NewSession(greeting string) *Session {
	s := &Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if greeting != "" {
		s.turns = append(s.turns, Turn{Role: RoleAI, Content: greeting})
	}
	return s
}

// Append adds a turn at the end of the history.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	s.turns = append(s.turns, Turn{Role: role, Content: content})
	s.mu.Unlock()
}

// History returns a copy of the turns in order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// ReplaceLast overwrites the content of the most recent turn. It is a no-op
// on an empty session.
func (s *Session) ReplaceLast(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 {
		s.turns[n-1].Content = content
	}
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset drops every turn and re-seeds the greeting.
func (s *Session) Reset(greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = s.turns[:0]
	if greeting != "" {
		s.turns = append(s.turns, Turn{Role: RoleAI, Content: greeting})
	}
}
