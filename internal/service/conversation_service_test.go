package service

import (
	"context"
	"testing"
	"time"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/repository"
	"context-teleporter/backend/internal/testutil"
	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationService(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGormConversationRepository(testutil.NewDB(t))
	ingest := NewIngestService(repo, config.WriteStrategyTransaction, logger.Discard(), observability.NewNoopMetrics())
	reader := NewConversationService(repo)

	alice := uuid.NewString()
	bob := uuid.NewString()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ingest.now = func() time.Time { return clock }

	write := func(owner, source, title string, msgs ...models.IngestMessage) string {
		t.Helper()
		id, err := ingest.Write(ctx, owner, &models.IngestPayload{Source: source, Title: title, Messages: msgs})
		require.NoError(t, err)
		return id
	}

	older := write(alice, "ChatGPT", "first",
		models.IngestMessage{Role: models.RoleUser, Content: "q"},
		models.IngestMessage{Role: models.RoleAssistant, Content: "a"},
	)
	time.Sleep(10 * time.Millisecond)
	newer := write(alice, "Perplexity", "second", models.IngestMessage{Role: models.RoleUser, Content: "x"})
	foreign := write(bob, "Gemini", "bob's", models.IngestMessage{Role: models.RoleUser, Content: "y"})

	t.Run("list is scoped and newest first", func(t *testing.T) {
		list, err := reader.List(ctx, alice)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer, list[0].ID)
		assert.Equal(t, older, list[1].ID)
		assert.Equal(t, "Perplexity", list[0].Source)
	})

	t.Run("get returns messages in order", func(t *testing.T) {
		detail, err := reader.Get(ctx, alice, older)
		require.NoError(t, err)
		assert.Equal(t, older, detail.Conversation.ID)
		require.Len(t, detail.Messages, 2)
		assert.Equal(t, "q", detail.Messages[0].Content)
		assert.Equal(t, "a", detail.Messages[1].Content)
	})

	t.Run("foreign and missing look the same", func(t *testing.T) {
		_, err := reader.Get(ctx, alice, foreign)
		assert.ErrorIs(t, err, ErrConversationNotFound)

		_, err = reader.Get(ctx, alice, uuid.NewString())
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("principal without data", func(t *testing.T) {
		list, err := reader.List(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
