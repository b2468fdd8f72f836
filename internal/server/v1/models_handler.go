package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/server/middleware"
	"github.com/nulzo/claude-gate/pkg/schema"
)

// ListModelsOpenAI serves GET /v1/models in the OpenAI shape.
func (p *Proxy) ListModelsOpenAI(c *gin.Context) {
	models, err := p.Repo.Models().ListEnabled(c.Request.Context())
	if err != nil {
		middleware.WriteError(c, middleware.DialectOpenAI, apperr.Internal("failed to list models", err))
		return
	}

	data := make([]schema.ModelInfo, 0, len(models))
	for _, m := range models {
		data = append(data, schema.ModelInfo{
			ID:      m.ID,
			Object:  "model",
			OwnedBy: "anthropic",
		})
	}

	c.JSON(http.StatusOK, schema.ModelList{Object: "list", Data: data})
}

// ListModelsAnthropic serves GET /v1/models in the Anthropic shape.
func (p *Proxy) ListModelsAnthropic(c *gin.Context) {
	models, err := p.Repo.Models().ListEnabled(c.Request.Context())
	if err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.Internal("failed to list models", err))
		return
	}

	data := make([]schema.ModelInfo, 0, len(models))
	for _, m := range models {
		data = append(data, schema.ModelInfo{ID: m.ID, Type: "model"})
	}

	c.JSON(http.StatusOK, gin.H{"data": data, "has_more": false})
}
