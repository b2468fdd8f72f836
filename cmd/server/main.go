package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/cmd"
	"github.com/nulzo/claude-gate/internal/cache"
	memorycache "github.com/nulzo/claude-gate/internal/cache/memory"
	rediscache "github.com/nulzo/claude-gate/internal/cache/redis"
	"github.com/nulzo/claude-gate/internal/config"
	"github.com/nulzo/claude-gate/internal/oauth"
	"github.com/nulzo/claude-gate/internal/platform/logger"
	"github.com/nulzo/claude-gate/internal/platform/otel"
	"github.com/nulzo/claude-gate/internal/quota"
	"github.com/nulzo/claude-gate/internal/server"
	"github.com/nulzo/claude-gate/internal/server/admin"
	v1 "github.com/nulzo/claude-gate/internal/server/v1"
	"github.com/nulzo/claude-gate/internal/store/sqlite"
	"github.com/nulzo/claude-gate/internal/upstream"
)

func main() {
	logger.Initialize(logger.DefaultConfig())
	log := logger.Get()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	go cmd.CheckForUpdates()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatal("failed to create data directory", zap.Error(err))
	}

	repo, err := sqlite.NewSQLiteStorage(cfg.DBPath(), log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer repo.Close()

	var transient cache.Service
	if cfg.Redis.Addr != "" {
		transient = rediscache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		log.Info("using redis cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		transient = memorycache.New()
	}

	if cfg.Tracing {
		shutdown, err := otel.InitTracer("claude-gate", log, os.Stdout)
		if err != nil {
			log.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	client := upstream.NewClient()
	oauthMgr := oauth.NewManager(repo, transient, log)
	engine := quota.NewEngine(repo, log,
		quota.WithResetProvider(server.NewResetProvider(transient, oauthMgr, client, log)))

	proxy := v1.NewProxy(repo, oauthMgr, engine, client, cfg, log)
	adminHandler := admin.NewHandler(repo, oauthMgr, engine, client, cfg, log)

	srv := server.New(cfg, log, repo, proxy, adminHandler, cmd.AppVersion)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
		// Generous timeouts: SSE responses stream for many minutes.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		log.Info("claude-gate listening",
			zap.String("addr", cfg.Addr()),
			zap.String("admin", "http://"+cfg.Addr()+"/admin"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
}
