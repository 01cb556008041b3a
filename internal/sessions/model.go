package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Session is one agent conversation. EndedAt is nil while the session is
// live; LastActivityAt advances on every appended message.
type Session struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Title          string     `json:"title,omitempty"`
	Model          string     `json:"model,omitempty"`
	Mode           string     `json:"mode,omitempty"`
	MessageCount   int64      `json:"message_count"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// Message is one turn in a session. Seq is assigned by the repository and is
// dense and gap free per session, so replaying messages in Seq order
// reconstructs the conversation.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int64     `json:"tokens,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput is the caller-supplied shape of a new session.
type CreateInput struct {
	Title string `json:"title" validate:"max=256"`
	Model string `json:"model" validate:"max=128"`
	Mode  string `json:"mode" validate:"max=32"`
}

// MessageInput is the caller-supplied shape of a new message.
type MessageInput struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system tool"`
	Content string `json:"content" validate:"required"`
	Tokens  int64  `json:"tokens" validate:"gte=0"`
}
