package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

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

func ingestRequest(t *testing.T, body string) *models.IngestRequest {
	t.Helper()
	var req models.IngestRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return &req
}

func TestValidateIngest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing source", `{"messages":[{"role":"user","content":"hi"}]}`, MsgInvalidSource},
		{"null source", `{"source":null,"messages":[{"role":"user","content":"hi"}]}`, MsgInvalidSource},
		{"numeric source", `{"source":5,"messages":[{"role":"user","content":"hi"}]}`, MsgInvalidSource},
		{"empty source", `{"source":"","messages":[{"role":"user","content":"hi"}]}`, MsgInvalidSource},
		{"whitespace source", `{"source":" \t\n ","messages":[{"role":"user","content":"hi"}]}`, MsgInvalidSource},
		{"source checked before messages", `{"source":"  "}`, MsgInvalidSource},
		{"missing messages", `{"source":"ChatGPT"}`, MsgInvalidMessages},
		{"empty messages", `{"source":"ChatGPT","messages":[]}`, MsgInvalidMessages},
		{"messages not array", `{"source":"ChatGPT","messages":{"role":"user"}}`, MsgInvalidMessages},
		{"bad role", `{"source":"ChatGPT","messages":[{"role":"system","content":"x"}]}`, MsgInvalidRole},
		{"role is case sensitive", `{"source":"ChatGPT","messages":[{"role":"User","content":"x"}]}`, MsgInvalidRole},
		{"missing role", `{"source":"ChatGPT","messages":[{"content":"x"}]}`, MsgInvalidRole},
		{"message not an object", `{"source":"ChatGPT","messages":["hi"]}`, MsgInvalidRole},
		{"bad role after valid messages", `{"source":"ChatGPT","messages":[{"role":"user","content":"a"},{"role":"bot","content":"b"}]}`, MsgInvalidRole},
		{"roles checked before contents", `{"source":"ChatGPT","messages":[{"role":"user","content":""},{"role":"bot","content":"b"}]}`, MsgInvalidRole},
		{"empty content", `{"source":"ChatGPT","messages":[{"role":"user","content":""}]}`, MsgInvalidContent},
		{"missing content", `{"source":"ChatGPT","messages":[{"role":"assistant"}]}`, MsgInvalidContent},
		{"numeric content", `{"source":"ChatGPT","messages":[{"role":"assistant","content":42}]}`, MsgInvalidContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateIngest(ingestRequest(t, tt.body))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Message)
		})
	}
}

func TestValidateIngest_ResolvesTitleAndKeepsOrder(t *testing.T) {
	p, err := ValidateIngest(ingestRequest(t, `{
		"source": "  ChatGPT  ",
		"messages": [
			{"role":"user","content":"hi"},
			{"role":"assistant","content":"hello"},
			{"role":"user","content":"hi"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "ChatGPT", p.Source)
	assert.Equal(t, "Conversation from ChatGPT", p.Title)
	require.Len(t, p.Messages, 3, "duplicates are kept")
	assert.Equal(t, models.RoleUser, p.Messages[0].Role)
	assert.Equal(t, "hello", p.Messages[1].Content)
	assert.Equal(t, "hi", p.Messages[2].Content)
}

func TestValidateIngest_Title(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{`"  My chat  "`, "My chat"},
		{`"   "`, "Conversation from Perplexity"},
		{`null`, "Conversation from Perplexity"},
		{`17`, "Conversation from Perplexity"},
	}
	for _, tt := range tests {
		p, err := ValidateIngest(ingestRequest(t,
			`{"source":"Perplexity","title":`+tt.title+`,"messages":[{"role":"user","content":"x"}]}`))
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.Title, tt.title)
	}
}

// faultyRepo injects failures into a real repository, including inside
// transactions.
type faultyRepo struct {
	repository.ConversationRepository
	conversationErr error
	messagesErr     error
	deleteErr       error
	deleted         []string
}

func (f *faultyRepo) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if f.conversationErr != nil {
		return f.conversationErr
	}
	return f.ConversationRepository.CreateConversation(ctx, c)
}

func (f *faultyRepo) CreateMessages(ctx context.Context, m []models.Message) error {
	if f.messagesErr != nil {
		return f.messagesErr
	}
	return f.ConversationRepository.CreateMessages(ctx, m)
}

func (f *faultyRepo) DeleteConversation(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.ConversationRepository.DeleteConversation(ctx, id)
}

func (f *faultyRepo) WithTx(ctx context.Context, fn func(repository.ConversationRepository) error) error {
	return f.ConversationRepository.WithTx(ctx, func(tx repository.ConversationRepository) error {
		return fn(&faultyRepo{
			ConversationRepository: tx,
			conversationErr:        f.conversationErr,
			messagesErr:            f.messagesErr,
			deleteErr:              f.deleteErr,
		})
	})
}

func newIngest(t *testing.T, strategy string) (*IngestService, *faultyRepo) {
	t.Helper()
	repo := &faultyRepo{ConversationRepository: repository.NewGormConversationRepository(testutil.NewDB(t))}
	return NewIngestService(repo, strategy, logger.Discard(), observability.NewNoopMetrics()), repo
}

func threeMessages() *models.IngestRequest {
	return &models.IngestRequest{
		Source:   json.RawMessage(`"ChatGPT"`),
		Messages: json.RawMessage(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":"bye"}]`),
	}
}

func TestIngest_PersistsConversationAndMessages(t *testing.T) {
	for _, strategy := range []string{config.WriteStrategyTransaction, config.WriteStrategyCompensate} {
		t.Run(strategy, func(t *testing.T) {
			ctx := context.Background()
			svc, repo := newIngest(t, strategy)
			owner := uuid.NewString()

			id, err := svc.Ingest(ctx, owner, threeMessages())
			require.NoError(t, err)
			require.NotEmpty(t, id)

			conv, err := repo.GetOwned(ctx, owner, id)
			require.NoError(t, err)
			assert.Equal(t, "ChatGPT", conv.Source)
			require.NotNil(t, conv.Title)
			assert.Equal(t, "Conversation from ChatGPT", *conv.Title)

			msgs, err := repo.ListMessages(ctx, id)
			require.NoError(t, err)
			require.Len(t, msgs, 3)
			for i, want := range []struct {
				role    models.Role
				content string
			}{{models.RoleUser, "hi"}, {models.RoleAssistant, "hello"}, {models.RoleUser, "bye"}} {
				assert.Equal(t, want.role, msgs[i].Role)
				assert.Equal(t, want.content, msgs[i].Content)
				assert.Equal(t, i, msgs[i].Position)
			}
			assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
			assert.True(t, msgs[1].CreatedAt.Before(msgs[2].CreatedAt))
		})
	}
}

func TestIngest_InvalidPayloadWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIngest(t, config.WriteStrategyTransaction)
	owner := uuid.NewString()

	req := &models.IngestRequest{
		Source:   json.RawMessage(`"ChatGPT"`),
		Messages: json.RawMessage(`[{"role":"user","content":"fine"},{"role":"tool","content":"nope"}]`),
	}
	_, err := svc.Ingest(ctx, owner, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWrite_ConversationFailure(t *testing.T) {
	for _, strategy := range []string{config.WriteStrategyTransaction, config.WriteStrategyCompensate} {
		t.Run(strategy, func(t *testing.T) {
			svc, repo := newIngest(t, strategy)
			repo.conversationErr = errors.New("insert refused")

			_, err := svc.Ingest(context.Background(), uuid.NewString(), threeMessages())
			assert.ErrorIs(t, err, ErrConversationFailed)
			assert.NotErrorIs(t, err, ErrMessagesFailed)
			assert.Empty(t, repo.deleted)
		})
	}
}

func TestWrite_TransactionRollsBackOnMessageFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIngest(t, config.WriteStrategyTransaction)
	repo.messagesErr = errors.New("batch refused")
	owner := uuid.NewString()

	id, err := svc.Ingest(ctx, owner, threeMessages())
	assert.ErrorIs(t, err, ErrMessagesFailed)
	assert.Empty(t, id)
	assert.Empty(t, repo.deleted, "no compensation needed inside a transaction")

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list, "no orphaned conversation")
}

func TestWrite_CompensatesOnMessageFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIngest(t, config.WriteStrategyCompensate)
	repo.messagesErr = errors.New("batch refused")
	owner := uuid.NewString()

	_, err := svc.Ingest(ctx, owner, threeMessages())
	assert.ErrorIs(t, err, ErrMessagesFailed)
	require.Len(t, repo.deleted, 1)

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWrite_CompensationFailureKeepsOriginalError(t *testing.T) {
	ctx := context.Background()
	svc, repo := newIngest(t, config.WriteStrategyCompensate)
	repo.messagesErr = errors.New("batch refused")
	repo.deleteErr = errors.New("delete refused")
	owner := uuid.NewString()

	_, err := svc.Ingest(ctx, owner, threeMessages())
	assert.ErrorIs(t, err, ErrMessagesFailed)
	assert.Contains(t, err.Error(), "batch refused")
	assert.NotContains(t, err.Error(), "delete refused")

	// The documented limitation: an empty conversation survives.
	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	msgs, err := repo.ListMessages(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
