package v1

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/prepare"
	"github.com/nulzo/claude-gate/internal/promptcache"
	"github.com/nulzo/claude-gate/internal/server/middleware"
	"github.com/nulzo/claude-gate/internal/translate"
	"github.com/nulzo/claude-gate/pkg/schema"
)

// Messages is the Anthropic-native ingress. The body goes through the
// outbound preparation pipeline (betas, thinking guard, optional cloaking,
// mcp_ tool-name prefix) and gets cache anchors; SSE events are forwarded in
// upstream order with the mcp_ prefix stripped from tool_use names.
func (p *Proxy) Messages(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.BadRequest("invalid request body"))
		return
	}

	modelID, _ := body["model"].(string)
	if modelID == "" {
		modelID = translate.DefaultModel
		body["model"] = modelID
	}

	key := middleware.KeyFromContext(c.Request.Context())

	if err := p.Quota.Permit(c.Request.Context(), key, modelID); err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, asAppError(err))
		return
	}

	stream, _ := body["stream"].(bool)

	cloak := prepare.ShouldCloak(p.Config.CloakMode, c.GetHeader("User-Agent"), body)
	betas := prepare.Request(body, cloak)
	promptcache.Inject(body)

	payload, err := json.Marshal(body)
	if err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.Internal("failed to encode upstream request", err))
		return
	}

	resp, aerr := p.callUpstream(c.Request.Context(), betas, stream, false, payload)
	if aerr != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, aerr)
		return
	}
	defer resp.Body.Close()

	if stream {
		writeSSEHeaders(c)
		result := translate.RelayAnthropicStream(c.Request.Context(), resp.Body, c.Writer)
		p.record(c.Request.Context(), key.ID, modelID, result.Usage)
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.UpstreamTransport(err))
		return
	}

	var parsed struct {
		Usage *schema.AnthropicUsage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Usage != nil {
		p.record(c.Request.Context(), key.ID, modelID, translate.UsageFromAnthropic(parsed.Usage))
	}

	// Strip the mcp_ prefix from tool_use names before relaying.
	var full map[string]interface{}
	if err := json.Unmarshal(raw, &full); err == nil {
		prepare.TransformResponseToolNames(full)
		if rewritten, err := json.Marshal(full); err == nil {
			raw = rewritten
		}
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// CountTokens normalizes and forwards to the count endpoint. Count-only
// calls are never accounted.
func (p *Proxy) CountTokens(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.BadRequest("invalid request body"))
		return
	}

	modelID, _ := body["model"].(string)
	if modelID == "" {
		modelID = translate.DefaultModel
		body["model"] = modelID
	}

	key := middleware.KeyFromContext(c.Request.Context())

	if err := p.Quota.Permit(c.Request.Context(), key, modelID); err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, asAppError(err))
		return
	}

	cloak := prepare.ShouldCloak(p.Config.CloakMode, c.GetHeader("User-Agent"), body)
	betas := prepare.CountTokens(body, cloak)
	promptcache.Inject(body)

	payload, err := json.Marshal(body)
	if err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.Internal("failed to encode upstream request", err))
		return
	}

	resp, aerr := p.callUpstream(c.Request.Context(), betas, false, true, payload)
	if aerr != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, aerr)
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		middleware.WriteError(c, middleware.DialectAnthropic, apperr.UpstreamTransport(err))
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
