package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is one imported chat thread. UserID never changes after
// creation.
type Conversation struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index:idx_conversations_user_created,priority:1" json:"-"`
	Source    string    `gorm:"not null" json:"source"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `gorm:"index:idx_conversations_user_created,priority:2,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ConversationSummary is the list-view projection of a Conversation.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToSummary drops the owner and relations.
func (c *Conversation) ToSummary() ConversationSummary {
	return ConversationSummary{
		ID:        c.ID,
		Title:     c.Title,
		Source:    c.Source,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ConversationDetail is a conversation with its messages in reading order.
type ConversationDetail struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []MessageResponse   `json:"messages"`
}
