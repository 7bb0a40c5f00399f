package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/repository"
	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrConversationFailed = errors.New("failed to create conversation")
	ErrMessagesFailed     = errors.New("failed to save messages")
)

var tracer = otel.Tracer("context-teleporter/backend/internal/service")

// IngestService validates and persists conversations pushed by the browser
// extension.
type IngestService struct {
	repo     repository.ConversationRepository
	strategy string
	log      *logger.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewIngestService creates an ingest service. strategy is one of
// config.WriteStrategyTransaction or config.WriteStrategyCompensate.
func NewIngestService(repo repository.ConversationRepository, strategy string, log *logger.Logger, metrics *observability.Metrics) *IngestService {
	if strategy == "" {
		strategy = config.WriteStrategyTransaction
	}
	return &IngestService{
		repo:     repo,
		strategy: strategy,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Ingest validates req and writes it for principalID. A *ValidationError is
// returned before anything touches the store.
func (s *IngestService) Ingest(ctx context.Context, principalID string, req *models.IngestRequest) (string, error) {
	payload, err := ValidateIngest(req)
	if err != nil {
		s.metrics.Ingestion(ctx, "invalid", 0)
		return "", err
	}

	id, err := s.Write(ctx, principalID, payload)
	if err != nil {
		s.metrics.Ingestion(ctx, "failed", 0)
		return "", err
	}

	s.metrics.Ingestion(ctx, "created", len(payload.Messages))
	return id, nil
}

// Write stores one conversation and all of its messages. Errors wrap
// ErrConversationFailed or ErrMessagesFailed. Nothing is retried.
func (s *IngestService) Write(ctx context.Context, principalID string, payload *models.IngestPayload) (string, error) {
	ctx, span := tracer.Start(ctx, "ingest.write")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.source", payload.Source),
		attribute.Int("ingest.messages", len(payload.Messages)),
		attribute.String("ingest.strategy", s.strategy),
	)

	title := payload.Title
	conversation := &models.Conversation{
		UserID: principalID,
		Source: payload.Source,
		Title:  &title,
	}

	var err error
	if s.strategy == config.WriteStrategyCompensate {
		err = s.writeCompensating(ctx, conversation, payload.Messages)
	} else {
		err = s.writeTransactional(ctx, conversation, payload.Messages)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("conversation.id", conversation.ID))
	return conversation.ID, nil
}

func (s *IngestService) writeTransactional(ctx context.Context, conversation *models.Conversation, input []models.IngestMessage) error {
	err := s.repo.WithTx(ctx, func(tx repository.ConversationRepository) error {
		if err := tx.CreateConversation(ctx, conversation); err != nil {
			return fmt.Errorf("%w: %v", ErrConversationFailed, err)
		}
		if err := tx.CreateMessages(ctx, s.buildMessages(conversation.ID, input)); err != nil {
			return fmt.Errorf("%w: %v", ErrMessagesFailed, err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	conversation.ID = ""
	if errors.Is(err, ErrConversationFailed) || errors.Is(err, ErrMessagesFailed) {
		return err
	}
	// Commit failed: nothing was stored.
	return fmt.Errorf("%w: commit: %v", ErrConversationFailed, err)
}

// writeCompensating is for stores without multi-statement transactions. A
// failed message insert triggers a best-effort delete of the conversation;
// if that delete also fails an empty conversation is left behind and only
// logged.
func (s *IngestService) writeCompensating(ctx context.Context, conversation *models.Conversation, input []models.IngestMessage) error {
	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}

	msgErr := s.repo.CreateMessages(ctx, s.buildMessages(conversation.ID, input))
	if msgErr == nil {
		return nil
	}

	if err := s.repo.DeleteConversation(ctx, conversation.ID); err != nil {
		s.metrics.Compensation(ctx, false)
		s.log.Error("Compensating delete failed, conversation left without messages",
			"conversation_id", conversation.ID,
			"error", err.Error(),
			"cause", msgErr.Error(),
		)
	} else {
		s.metrics.Compensation(ctx, true)
		s.log.Warn("Removed conversation after message insert failed",
			"conversation_id", conversation.ID,
			"cause", msgErr.Error(),
		)
	}

	conversation.ID = ""
	return fmt.Errorf("%w: %v", ErrMessagesFailed, msgErr)
}

// buildMessages tags each message with its index and a strictly increasing
// timestamp so that creation-time order equals submission order.
func (s *IngestService) buildMessages(conversationID string, input []models.IngestMessage) []models.Message {
	base := s.now()
	out := make([]models.Message, len(input))
	for i, m := range input {
		out[i] = models.Message{
			ConversationID: conversationID,
			Role:           m.Role,
			Content:        m.Content,
			Position:       i,
			CreatedAt:      base.Add(time.Duration(i) * time.Microsecond),
		}
	}
	return out
}
