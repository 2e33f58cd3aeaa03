package models

import "time"

// Turn roles. Turns are strictly ordered by append time and never edited.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one entry in a session's history.
type ConversationTurn struct {
	Role      string   `bson:"role" json:"role"`
	Content   string   `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Sources   []string `bson:"sources,omitempty" json:"sources,omitempty"`
	Error     string   `bson:"error,omitempty" json:"error,omitempty"`
}

// ChatSession is the durable context of one multi-turn conversation.
// Clearing a session empties its history; the session id stays valid.
type ChatSession struct {
	SessionID string             `bson:"_id" json:"session_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
	History   []ConversationTurn `bson:"history" json:"conversation_history"`
}

// UserTurns counts user turns; the conversation turn number of the next
// message is UserTurns()+1.
func (s *ChatSession) UserTurns() int {
	n := 0
	for _, t := range s.History {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}
