package service

import (
	"context"
	"errors"
	"fmt"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/repository"
)

// ErrConversationNotFound covers both a missing conversation and one owned by
// someone else.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrMessagesUnavailable means the conversation was found but its messages
// could not be read.
var ErrMessagesUnavailable = errors.New("failed to fetch messages")

// ConversationService is the read side: every call is scoped to a principal.
type ConversationService struct {
	repo repository.ConversationRepository
}

func NewConversationService(repo repository.ConversationRepository) *ConversationService {
	return &ConversationService{repo: repo}
}

// List returns principalID's conversations, newest first.
func (s *ConversationService) List(ctx context.Context, principalID string) ([]models.ConversationSummary, error) {
	conversations, err := s.repo.ListByOwner(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]models.ConversationSummary, len(conversations))
	for i := range conversations {
		out[i] = conversations[i].ToSummary()
	}
	return out, nil
}

// Get returns one conversation with its messages in reading order.
func (s *ConversationService) Get(ctx context.Context, principalID, id string) (*models.ConversationDetail, error) {
	conversation, err := s.repo.GetOwned(ctx, principalID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	messages, err := s.ListMessages(ctx, conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessagesUnavailable, err)
	}

	return &models.ConversationDetail{
		Conversation: conversation.ToSummary(),
		Messages:     messages,
	}, nil
}

// ListMessages returns a conversation's messages oldest first. Callers must
// have established ownership of conversationID.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string) ([]models.MessageResponse, error) {
	messages, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]models.MessageResponse, len(messages))
	for i := range messages {
		out[i] = messages[i].ToResponse()
	}
	return out, nil
}
