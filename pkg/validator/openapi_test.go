package validator

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"context-teleporter/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDocument(t *testing.T) {
	v, err := NewOpenAPIValidator()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"/api/ingest",
		"/api/conversations",
		"/api/conversations/{id}",
		"/api/keys",
		"/api/keys/{id}",
	}, v.Paths())
}

func TestNewOpenAPIValidatorFromData_Invalid(t *testing.T) {
	_, err := NewOpenAPIValidatorFromData([]byte("openapi: 3.0.3\ninfo: {}\npaths: {}\n"))
	assert.Error(t, err)
}

const queryDoc = `
openapi: 3.0.3
info: {title: t, version: "1"}
paths:
  /search:
    get:
      parameters:
        - name: limit
          in: query
          required: true
          schema: {type: integer}
      responses:
        '200': {description: OK}
`

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidatorFromData([]byte(queryDoc))
	require.NoError(t, err)

	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	r.GET("/search", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/undocumented", func(c *gin.Context) { c.Status(http.StatusOK) })

	for path, want := range map[string]int{
		"/search?limit=5":   http.StatusOK,
		"/search?limit=abc": http.StatusBadRequest,
		"/search":           http.StatusBadRequest,
		"/undocumented":     http.StatusOK,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
