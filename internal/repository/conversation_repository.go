package repository

import (
	"context"
	"errors"

	"context-teleporter/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist or is not owned by the
// requesting principal. Callers cannot tell the two apart.
var ErrNotFound = errors.New("record not found")

// ConversationRepository persists conversations and their messages. Every
// read is filtered by owner.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	CreateMessages(ctx context.Context, messages []models.Message) error
	DeleteConversation(ctx context.Context, id string) error
	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(repo ConversationRepository) error) error

	ListByOwner(ctx context.Context, userID string) ([]models.Conversation, error)
	GetOwned(ctx context.Context, userID, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

// CreateMessages inserts the whole slice in one statement.
func (r *GormConversationRepository) CreateMessages(ctx context.Context, messages []models.Message) error {
	return r.db.WithContext(ctx).Create(&messages).Error
}

func (r *GormConversationRepository) DeleteConversation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Conversation{}).Error
}

func (r *GormConversationRepository) WithTx(ctx context.Context, fn func(repo ConversationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormConversationRepository{db: tx})
	})
}

func (r *GormConversationRepository) ListByOwner(ctx context.Context, userID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Select("id", "title", "source", "created_at", "updated_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *GormConversationRepository) GetOwned(ctx context.Context, userID, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

// ListMessages returns messages in reading order.
func (r *GormConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("position ASC").
		Find(&messages).Error
	return messages, err
}
