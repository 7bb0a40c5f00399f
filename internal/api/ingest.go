package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"context-teleporter/backend/internal/models"
	"context-teleporter/backend/internal/service"
	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// MsgAPIKeyRequired is the 401 message of the ingest route.
const MsgAPIKeyRequired = "Unauthorized. Please provide a valid API key."

// IngestController accepts conversations from the browser extension.
type IngestController struct {
	ingest      *service.IngestService
	maxBodySize int64
}

// NewIngestController creates a new ingest controller
func NewIngestController(ingest *service.IngestService, maxBodySize int64) *IngestController {
	return &IngestController{ingest: ingest, maxBodySize: maxBodySize}
}

// RegisterRoutes registers the single ingestion route.
func (h *IngestController) RegisterRoutes(api *gin.RouterGroup, auth *middleware.Authenticator) {
	api.POST("/ingest", auth.RequireIngestAuth(MsgAPIKeyRequired), h.Ingest)
}

// Ingest validates and stores one conversation.
func (h *IngestController) Ingest(c *gin.Context) {
	if h.maxBodySize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize)
	}

	req, appErr := decodeIngestRequest(c.Request.Body)
	if appErr != nil {
		c.Error(appErr)
		return
	}

	id, err := h.ingest.Ingest(c.Request.Context(), middleware.PrincipalID(c), req)
	if err != nil {
		c.Error(ingestError(err))
		return
	}

	c.JSON(http.StatusCreated, models.IngestResponse{ConversationID: id})
}

// decodeIngestRequest accepts any JSON document. Anything other than an
// object decodes to an empty request and fails validation on source.
func decodeIngestRequest(body io.Reader) (*models.IngestRequest, *errors.AppError) {
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewError(http.StatusRequestEntityTooLarge, errors.CodeInvalidJSON, "Request body too large")
		}
		return nil, errors.NewBadRequestError(errors.CodeInvalidJSON, "Invalid JSON body").WithCause(err)
	}
	if !json.Valid(raw) {
		return nil, errors.NewBadRequestError(errors.CodeInvalidJSON, "Invalid JSON body")
	}

	var req models.IngestRequest
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return nil, errors.NewBadRequestError(errors.CodeInvalidJSON, "Invalid JSON body").WithCause(err)
		}
	}
	return &req, nil
}

func ingestError(err error) *errors.AppError {
	var verr *service.ValidationError
	switch {
	case stderrors.As(err, &verr):
		return errors.NewValidationError(verr.Message)
	case stderrors.Is(err, service.ErrConversationFailed):
		return errors.NewInternalServerError(errors.CodeConversationFailed, "Failed to create conversation").WithCause(err)
	case stderrors.Is(err, service.ErrMessagesFailed):
		return errors.NewInternalServerError(errors.CodeMessagesFailed, "Failed to save messages").WithCause(err)
	default:
		return errors.FromError(err)
	}
}
