package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/upstream"
)

func (h *Handler) OAuthStatus(c *gin.Context) {
	status, err := h.oauth.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read credential"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// StartOAuth begins the PKCE flow and returns the authorize URL.
func (h *Handler) StartOAuth(c *gin.Context) {
	url, err := h.oauth.StartFlow(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start OAuth flow"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

type exchangeRequest struct {
	// Code is the pasted value, optionally "code#state".
	Code string `json:"code" binding:"required"`
}

func (h *Handler) ExchangeOAuth(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := h.oauth.ExchangeCode(c.Request.Context(), req.Code); err != nil {
		h.logger.Warn("OAuth exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// Plan detection is cosmetic; ignore failures.
	if token, err := h.oauth.Token(c.Request.Context()); err == nil {
		if plan := h.client.FetchPlan(c.Request.Context(), token); plan != "" {
			h.oauth.SetPlan(c.Request.Context(), plan)
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) DisconnectOAuth(c *gin.Context) {
	if err := h.oauth.Disconnect(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// SubscriptionUsage proxies the upstream subscription utilization payload
// for the dashboard.
func (h *Handler) SubscriptionUsage(c *gin.Context) {
	token, err := h.oauth.Token(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not connected"})
		return
	}

	usage, err := h.client.FetchSubscription(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch subscription usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": usage,
		"state": upstream.ExtractState(usage),
	})
}
