package v1

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/config"
	"github.com/nulzo/claude-gate/internal/oauth"
	"github.com/nulzo/claude-gate/internal/quota"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/internal/upstream"
)

// Proxy bundles the collaborators every proxy handler needs.
type Proxy struct {
	Repo   store.Repository
	OAuth  *oauth.Manager
	Quota  *quota.Engine
	Client *upstream.Client
	Config *config.Config
	Logger *zap.Logger

	// Now is the injectable clock used for response ids.
	Now func() time.Time
}

func NewProxy(repo store.Repository, mgr *oauth.Manager, engine *quota.Engine, client *upstream.Client, cfg *config.Config, logger *zap.Logger) *Proxy {
	return &Proxy{
		Repo:   repo,
		OAuth:  mgr,
		Quota:  engine,
		Client: client,
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

// asAppError normalizes any error into the proxy error shape.
func asAppError(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal("internal error", err)
}

// callUpstream issues the upstream request with the current access token.
// On a 401 it force-refreshes the token and retries exactly once.
func (p *Proxy) callUpstream(ctx context.Context, betas []string, stream, countTokens bool, body []byte) (*http.Response, *apperr.Error) {
	token, err := p.OAuth.Token(ctx)
	if err != nil {
		return nil, asAppError(err)
	}

	do := func(token string) (*http.Response, error) {
		if countTokens {
			return p.Client.CountTokens(ctx, token, betas, body)
		}
		return p.Client.Messages(ctx, token, betas, stream, body)
	}

	resp, err := do(token)
	if err != nil {
		return nil, apperr.UpstreamTransport(err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// The access token may have been revoked out from under us; one
		// forced refresh, one retry, then give up.
		_ = resp.Body.Close()
		token, err = p.OAuth.ForceRefresh(ctx)
		if err != nil {
			return nil, asAppError(err)
		}
		resp, err = do(token)
		if err != nil {
			return nil, apperr.UpstreamTransport(err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		return nil, apperr.UpstreamStatus(resp.StatusCode, respBody)
	}

	return resp, nil
}

// record books usage after a completed request; accounting failures are
// logged, never surfaced to the client.
func (p *Proxy) record(ctx context.Context, keyID, modelID string, usage model.TokenUsage) {
	if usage.IsZero() {
		return
	}
	// Detached from the request context: cancellation must not lose the
	// accounting for usage upstream already reported.
	ctx = context.WithoutCancel(ctx)
	if err := p.Quota.Record(ctx, keyID, modelID, usage); err != nil {
		p.Logger.Warn("failed to record usage",
			zap.String("key_id", keyID),
			zap.String("model", modelID),
			zap.Error(err))
	}
}
