package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageJoin   MessageKind = "join"
	MessageLeave  MessageKind = "leave"
	MessageSystem MessageKind = "system"
)

// MaxMessageLength caps the body of a text message.
const MaxMessageLength = 1000

type ChatMessage struct {
	ID          uuid.UUID   `json:"id"`
	RoomID      string      `json:"room_id"`
	UserID      uuid.UUID   `json:"user_id"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url,omitempty"`
	Body        string      `json:"body"`
	Kind        MessageKind `json:"kind"`
	Edited      bool        `json:"edited"`
	CreatedAt   time.Time   `json:"created_at"`
}
