package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted roles. Matching is
// case-sensitive.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation. Messages are created in a single
// batch with their conversation and never change afterwards.
type Message struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;index:idx_messages_conversation_position,priority:1" json:"-"`
	Role           Role      `gorm:"type:text;not null" json:"role"`
	Content        string    `gorm:"not null" json:"content"`
	Position       int       `gorm:"not null;index:idx_messages_conversation_position,priority:2" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageResponse is the public shape of a message.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse drops the parent id and ordering column.
func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
