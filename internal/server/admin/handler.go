// Package admin implements the operator surface: sessions, key and model
// CRUD, OAuth connection management and usage-history aggregation.
package admin

import (
	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/config"
	"github.com/nulzo/claude-gate/internal/oauth"
	"github.com/nulzo/claude-gate/internal/quota"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/upstream"
)

type Handler struct {
	repo   store.Repository
	oauth  *oauth.Manager
	quota  *quota.Engine
	client *upstream.Client
	cfg    *config.Config
	logger *zap.Logger

	// secureCookies is false only for loopback binds.
	secureCookies bool
}

func NewHandler(repo store.Repository, mgr *oauth.Manager, engine *quota.Engine, client *upstream.Client, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		repo:          repo,
		oauth:         mgr,
		quota:         engine,
		client:        client,
		cfg:           cfg,
		logger:        logger,
		secureCookies: !cfg.IsLocalhostBind(),
	}
}
