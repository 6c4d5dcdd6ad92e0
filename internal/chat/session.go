// Package chat implements the conversation core: session state, thread
// hydration on reconnect, replay of persisted turns, and the per-message
// exchange with the model. A Session is owned by exactly one connection
// handler and passed explicitly through every call; there is no process-wide
// session registry.
package chat

import (
	"github.com/google/uuid"

	"runxchat/internal/auth"
	"runxchat/internal/llm"
)

// Session is the transient per-connection state. It is created at connect,
// destroyed at disconnect, and never written to the store.
type Session struct {
	ID   string
	User *auth.AuthenticatedUser

	// ThreadIDToResume names the persisted thread this connection wants to
	// continue; empty for a fresh conversation.
	ThreadIDToResume string

	// History is the ordered turn sequence sent to the model.
	History []llm.Turn

	// State is the session-scoped copy of the resumed thread's metadata.
	State map[string]any

	// ChatProfile and ChatSettings are lifted out of State when present.
	ChatProfile  string
	ChatSettings map[string]any
}

// NewSession creates a session for an authenticated user. threadID may be
// empty.
func NewSession(user *auth.AuthenticatedUser, threadID string) *Session {
	return &Session{
		ID:               uuid.NewString(),
		User:             user,
		ThreadIDToResume: threadID,
		History:          []llm.Turn{},
		State:            map[string]any{},
	}
}

// ResetHistory drops the turn sequence, keeping the backing slice out of
// reach of earlier references.
func (s *Session) ResetHistory() {
	s.History = []llm.Turn{}
}

// AppendTurn adds one turn at the end of the history.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, llm.Turn{Role: role, Content: content})
}

// HasSystemTurn reports whether any turn in the history carries the system
// role, wherever it sits.
func (s *Session) HasSystemTurn() bool {
	for _, turn := range s.History {
		if turn.Role == llm.RoleSystem {
			return true
		}
	}
	return false
}

// InsertSystemTurn puts a system turn at position 0.
func (s *Session) InsertSystemTurn(content string) {
	s.History = append([]llm.Turn{{Role: llm.RoleSystem, Content: content}}, s.History...)
}
