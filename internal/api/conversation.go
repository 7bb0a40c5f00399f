package api

import (
	stderrors "errors"
	"net/http"

	"context-teleporter/backend/internal/service"
	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MsgLoginRequired is the 401 message of the read routes.
const MsgLoginRequired = "Unauthorized. Please log in."

// ConversationController serves the signed-in user's conversations.
type ConversationController struct {
	conversations *service.ConversationService
}

// NewConversationController creates a new conversation controller
func NewConversationController(conversations *service.ConversationService) *ConversationController {
	return &ConversationController{conversations: conversations}
}

// RegisterRoutes registers the routes for the conversation controller
func (h *ConversationController) RegisterRoutes(api *gin.RouterGroup, auth *middleware.Authenticator) {
	group := api.Group("/conversations")
	group.Use(auth.RequireSession(MsgLoginRequired))
	{
		group.GET("", h.List)
		group.GET("/:id", h.Get)
	}
}

// List returns the caller's conversations, newest first.
func (h *ConversationController) List(c *gin.Context) {
	list, err := h.conversations.List(c.Request.Context(), middleware.PrincipalID(c))
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "Failed to fetch conversations").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, list)
}

// Get returns one conversation and its messages. Someone else's
// conversation is reported as not found.
func (h *ConversationController) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidID, "Invalid conversation ID"))
		return
	}

	detail, err := h.conversations.Get(c.Request.Context(), middleware.PrincipalID(c), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, detail)
	case stderrors.Is(err, service.ErrConversationNotFound):
		c.Error(errors.NewNotFoundError("Conversation not found"))
	case stderrors.Is(err, service.ErrMessagesUnavailable):
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "Failed to fetch messages").WithCause(err))
	default:
		c.Error(errors.FromError(err))
	}
}
