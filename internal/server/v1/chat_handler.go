package v1

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/prepare"
	"github.com/nulzo/claude-gate/internal/promptcache"
	"github.com/nulzo/claude-gate/internal/server/middleware"
	"github.com/nulzo/claude-gate/internal/server/validator"
	"github.com/nulzo/claude-gate/internal/translate"
	"github.com/nulzo/claude-gate/pkg/schema"
)

// ChatCompletions is the OpenAI-compatible ingress: translate, cloak,
// anchor, forward, translate back.
func (p *Proxy) ChatCompletions(c *gin.Context) {
	var req schema.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fields := validator.ParseError(err)
		msg := "invalid request body"
		for f, m := range fields {
			msg = f + " " + m
			break
		}
		middleware.WriteError(c, middleware.DialectOpenAI, apperr.BadRequest(msg))
		return
	}

	key := middleware.KeyFromContext(c.Request.Context())

	body, modelID := translate.OpenAIToAnthropic(&req)

	if err := p.Quota.Permit(c.Request.Context(), key, modelID); err != nil {
		middleware.WriteError(c, middleware.DialectOpenAI, asAppError(err))
		return
	}

	cloak := prepare.ShouldCloak(p.Config.CloakMode, c.GetHeader("User-Agent"), body)
	betas := prepare.Request(body, cloak)
	promptcache.Inject(body)

	payload, err := json.Marshal(body)
	if err != nil {
		middleware.WriteError(c, middleware.DialectOpenAI, apperr.Internal("failed to encode upstream request", err))
		return
	}

	resp, aerr := p.callUpstream(c.Request.Context(), betas, req.Stream, false, payload)
	if aerr != nil {
		middleware.WriteError(c, middleware.DialectOpenAI, aerr)
		return
	}
	defer resp.Body.Close()

	if req.Stream {
		writeSSEHeaders(c)
		result := translate.RelayOpenAIStream(c.Request.Context(), resp.Body, c.Writer, modelID, p.Now().Unix())
		p.record(c.Request.Context(), key.ID, modelID, result.Usage)
		return
	}

	var upstreamResp schema.AnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&upstreamResp); err != nil {
		middleware.WriteError(c, middleware.DialectOpenAI, apperr.Internal("failed to parse upstream response", err))
		return
	}

	p.record(c.Request.Context(), key.ID, modelID, translate.UsageFromAnthropic(&upstreamResp.Usage))

	c.JSON(http.StatusOK, translate.AnthropicToOpenAI(&upstreamResp, p.Now().Unix()))
}

func writeSSEHeaders(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}
