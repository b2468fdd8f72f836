package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/keys"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
)

// Dialect selects the error envelope for a route group.
type Dialect int

const (
	DialectOpenAI Dialect = iota
	DialectAnthropic
)

// WriteError renders an apperr in the group's dialect. Upstream bodies are
// forwarded verbatim.
func WriteError(c *gin.Context, dialect Dialect, err *apperr.Error) {
	if err.Kind == apperr.KindUpstreamStatus && len(err.UpstreamBody) > 0 {
		c.Data(err.HTTPStatus(), "application/json", err.UpstreamBody)
		return
	}
	if err.Kind == apperr.KindQuotaExceeded && err.ResetAt > 0 {
		// Epoch seconds of the window reset; clients compute the delta.
		c.Header("retry-after-at", strconv.FormatInt(err.ResetAt/1000, 10))
	}
	if dialect == DialectAnthropic {
		c.JSON(err.HTTPStatus(), err.AnthropicBody())
		return
	}
	c.JSON(err.HTTPStatus(), err.OpenAIBody())
}

// extractSecret pulls the client credential from x-api-key or
// Authorization: Bearer, in that order.
func extractSecret(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

// Auth validates the proxy API key against the store and injects the key
// row into the request context.
func Auth(repo store.Repository, dialect Dialect) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := extractSecret(c)
		if secret == "" {
			WriteError(c, dialect, apperr.Unauthorized("missing x-api-key or Authorization header"))
			c.Abort()
			return
		}
		if !keys.HasPrefix(secret) {
			WriteError(c, dialect, apperr.Unauthorized("invalid API key"))
			c.Abort()
			return
		}

		key, err := repo.Keys().GetByHash(c.Request.Context(), keys.Hash(secret))
		if err != nil {
			WriteError(c, dialect, apperr.Unauthorized("invalid API key"))
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), store.ContextKeyAPIKey, key)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// KeyFromContext retrieves the authenticated key placed by Auth.
func KeyFromContext(ctx context.Context) *model.APIKey {
	key, _ := ctx.Value(store.ContextKeyAPIKey).(*model.APIKey)
	return key
}
