package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/config"
	"github.com/nulzo/claude-gate/internal/server/admin"
	"github.com/nulzo/claude-gate/internal/server/middleware"
	"github.com/nulzo/claude-gate/internal/server/validator"
	v1 "github.com/nulzo/claude-gate/internal/server/v1"
	"github.com/nulzo/claude-gate/internal/store"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	repo   store.Repository
	proxy  *v1.Proxy
	admin  *admin.Handler
	health *v1.HealthHandler
}

func New(cfg *config.Config, logger *zap.Logger, repo store.Repository, proxy *v1.Proxy, adminHandler *admin.Handler, version string) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.Init()

	engine := gin.New()
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.CORS(cfg.CORS))
	if cfg.Tracing {
		engine.Use(otelgin.Middleware("claude-gate"))
	}

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		repo:   repo,
		proxy:  proxy,
		admin:  adminHandler,
		health: v1.NewHealthHandler(version),
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
