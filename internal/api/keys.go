package api

import (
	"encoding/json"
	"io"
	"net/http"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/service"
	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// MsgUnauthorized is the 401 message of the key management routes.
const MsgUnauthorized = "Unauthorized"

const maxKeyRequestSize = 4 << 10

// KeysController manages the signed-in user's API keys.
type KeysController struct {
	keys *service.APIKeyService
}

// NewKeysController creates a new API key controller
func NewKeysController(keys *service.APIKeyService) *KeysController {
	return &KeysController{keys: keys}
}

// RegisterRoutes registers the routes for the keys controller
func (h *KeysController) RegisterRoutes(api *gin.RouterGroup, auth *middleware.Authenticator) {
	group := api.Group("/keys")
	group.Use(auth.RequireSession(MsgUnauthorized))
	{
		group.POST("", h.Create)
		group.GET("", h.List)
		group.DELETE("/:id", h.Delete)
	}
}

// Create issues a key. The raw key is in this response and nowhere else.
// A missing or unreadable body gets the default name.
func (h *KeysController) Create(c *gin.Context) {
	var req models.CreateAPIKeyRequest
	if raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxKeyRequestSize)); err == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, &req)
	}

	created, err := h.keys.Generate(c.Request.Context(), middleware.PrincipalID(c), req.Name)
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "Failed to create API key").WithCause(err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List returns key metadata only.
func (h *KeysController) List(c *gin.Context) {
	keys, err := h.keys.List(c.Request.Context(), middleware.PrincipalID(c))
	if err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "Failed to fetch API keys").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, keys)
}

// Delete revokes a key. Unknown or foreign ids succeed without effect.
func (h *KeysController) Delete(c *gin.Context) {
	if err := h.keys.Delete(c.Request.Context(), middleware.PrincipalID(c), c.Param("id")); err != nil {
		c.Error(errors.NewInternalServerError(errors.CodeInternal, "Failed to delete API key").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
