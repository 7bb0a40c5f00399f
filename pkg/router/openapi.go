package router

import (
	"net/http"

	"context-teleporter/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// setupOpenAPI serves the API document and, when enabled, validates
// requests against it.
func (r *Router) setupOpenAPI(apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", validator.Document)
	})

	if !r.Config.OpenAPI.ValidateRequests {
		return nil
	}

	v, err := validator.NewOpenAPIValidator()
	if err != nil {
		return err
	}
	apiGroup.Use(v.Middleware())
	r.Logger.Info("OpenAPI request validation enabled")
	return nil
}
