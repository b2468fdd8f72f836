package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/claude-gate/internal/server/admin"
	"github.com/nulzo/claude-gate/internal/server/middleware"
)

func (s *Server) SetupRoutes() {
	s.router.GET("/health", s.health.Health)
	s.router.GET("/version", s.health.Version)

	// Proxy ingress. The two dialects share auth but render errors in
	// their own envelope.
	api := s.router.Group("/v1")
	{
		openai := api.Group("")
		openai.Use(middleware.Auth(s.repo, middleware.DialectOpenAI))
		openai.POST("/chat/completions", s.proxy.ChatCompletions)

		anthropic := api.Group("")
		anthropic.Use(middleware.Auth(s.repo, middleware.DialectAnthropic))
		anthropic.POST("/messages", s.proxy.Messages)
		anthropic.POST("/messages/count_tokens", s.proxy.CountTokens)

		api.GET("/models", func(c *gin.Context) {
			// Anthropic SDKs always send anthropic-version.
			if c.GetHeader("anthropic-version") != "" {
				s.proxy.ListModelsAnthropic(c)
				return
			}
			s.proxy.ListModelsOpenAI(c)
		})
	}

	s.setupAdminRoutes()
}

func (s *Server) setupAdminRoutes() {
	s.router.GET("/admin", admin.StaticUI())
	s.router.GET("/admin/api-docs", s.apiDocs)

	// Auth endpoints are reachable without a session; login is rate limited
	// against brute force.
	loginLimiter := middleware.NewRateLimiter(1, 5, s.logger)
	auth := s.router.Group("/admin/auth")
	auth.POST("/login", loginLimiter.Middleware(), s.admin.Login)
	auth.POST("/logout", s.admin.Logout)
	auth.GET("/check", s.admin.Check)

	protected := s.router.Group("/admin")
	protected.Use(s.admin.AuthRequired())
	{
		protected.POST("/keys", s.admin.CreateKey)
		protected.GET("/keys", s.admin.ListKeys)
		protected.DELETE("/keys/:id", s.admin.DeleteKey)
		protected.PUT("/keys/:id/enabled", s.admin.SetKeyEnabled)
		protected.PUT("/keys/:id/limits", s.admin.UpdateKeyLimits)
		protected.GET("/keys/:id/usage", s.admin.GetKeyUsage)
		protected.POST("/keys/:id/usage/reset", s.admin.ResetKeyUsage)
		protected.GET("/keys/:id/models", s.admin.GetKeyModels)
		protected.PUT("/keys/:id/models", s.admin.SetKeyModels)
		protected.GET("/keys/:id/model-usage", s.admin.GetKeyModelUsage)
		protected.PUT("/keys/:id/model-limits/:model", s.admin.SetKeyModelLimits)
		protected.DELETE("/keys/:id/model-limits/:model", s.admin.RemoveKeyModelLimits)
		protected.POST("/keys/:id/model-usage/:model/reset", s.admin.ResetKeyModelUsage)

		protected.GET("/models", s.admin.ListModels)
		protected.POST("/models", s.admin.AddModel)
		protected.PUT("/models/:id", s.admin.UpdateModel)
		protected.DELETE("/models/:id", s.admin.DeleteModel)
		protected.POST("/models/reorder", s.admin.ReorderModels)

		protected.GET("/oauth/status", s.admin.OAuthStatus)
		protected.POST("/oauth/start", s.admin.StartOAuth)
		protected.POST("/oauth/exchange", s.admin.ExchangeOAuth)
		protected.DELETE("/oauth", s.admin.DisconnectOAuth)
		protected.GET("/oauth/subscription", s.admin.SubscriptionUsage)

		protected.GET("/usage-history/timeseries", s.admin.Timeseries)
		protected.GET("/usage-history/by-model", s.admin.UsageByModel)
		protected.GET("/usage-history/by-key", s.admin.UsageByKey)
	}
}

// apiDocs serves a hand-rolled OpenAPI sketch of the admin surface; enough
// for tooling to discover routes without a generator dependency.
func (s *Server) apiDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"openapi": "3.0.3",
		"info": gin.H{
			"title":   "claude-gate admin API",
			"version": "1",
		},
		"paths": gin.H{
			"/admin/auth/login":                 gin.H{"post": gin.H{"summary": "Create admin session"}},
			"/admin/auth/logout":                gin.H{"post": gin.H{"summary": "Destroy admin session"}},
			"/admin/auth/check":                 gin.H{"get": gin.H{"summary": "Check session"}},
			"/admin/keys":                       gin.H{"get": gin.H{"summary": "List keys"}, "post": gin.H{"summary": "Create key"}},
			"/admin/keys/{id}":                  gin.H{"delete": gin.H{"summary": "Delete key"}},
			"/admin/keys/{id}/limits":           gin.H{"put": gin.H{"summary": "Set key limits"}},
			"/admin/keys/{id}/usage":            gin.H{"get": gin.H{"summary": "Key usage counters"}},
			"/admin/models":                     gin.H{"get": gin.H{"summary": "List models"}, "post": gin.H{"summary": "Add model"}},
			"/admin/oauth/status":               gin.H{"get": gin.H{"summary": "OAuth status"}},
			"/admin/oauth/start":                gin.H{"post": gin.H{"summary": "Start OAuth flow"}},
			"/admin/oauth/exchange":             gin.H{"post": gin.H{"summary": "Exchange OAuth code"}},
			"/admin/usage-history/timeseries":   gin.H{"get": gin.H{"summary": "Usage timeseries"}},
			"/admin/usage-history/by-model":     gin.H{"get": gin.H{"summary": "Usage by model"}},
			"/admin/usage-history/by-key":       gin.H{"get": gin.H{"summary": "Usage by key"}},
		},
	})
}
