package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/cache"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/internal/upstream"
)

const (
	// ClientID is the Claude Code OAuth client.
	ClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	AuthorizeURL = "https://claude.ai/oauth/authorize"
	TokenURL     = "https://console.anthropic.com/v1/oauth/token"
	RedirectURI  = "https://console.anthropic.com/oauth/code/callback"
	Scopes       = "org:create_api_key user:profile user:inference"

	// refreshSkew refreshes ahead of actual expiry.
	refreshSkew = 60 * time.Second

	// flowTTL bounds how long a started authorization flow stays valid.
	flowTTL = 15 * time.Minute

	flowKeyPrefix = "oauth:flow:"
	lastFlowKey   = "oauth:flow:last"
)

// pendingFlow is the transient PKCE state between start and exchange.
type pendingFlow struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Manager owns the upstream OAuth credential: authorization-code + PKCE
// flow, persistence and single-flight refresh.
type Manager struct {
	repo   store.Repository
	flows  cache.Service
	http   upstream.HTTPClient
	logger *zap.Logger

	tokenURL     string
	authorizeURL string

	// refresh collapses concurrent refreshes into one upstream call.
	refresh singleflight.Group

	// snapshot is the in-process view of (access, expiry); readers never
	// touch the database on the hot path.
	mu   sync.RWMutex
	cred *model.OAuthCredential
}

type Option func(*Manager)

// WithEndpoints points the manager at test endpoints.
func WithEndpoints(authorize, token string) Option {
	return func(m *Manager) {
		m.authorizeURL = authorize
		m.tokenURL = token
	}
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c upstream.HTTPClient) Option {
	return func(m *Manager) { m.http = c }
}

func NewManager(repo store.Repository, flows cache.Service, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		flows:        flows,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		tokenURL:     TokenURL,
		authorizeURL: AuthorizeURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func randomURLSafe(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// StartFlow begins a PKCE authorization flow and returns the authorize URL
// the operator opens in a browser.
func (m *Manager) StartFlow(ctx context.Context) (string, error) {
	flow := pendingFlow{
		State:    randomURLSafe(32),
		Verifier: randomURLSafe(32),
	}

	if err := m.flows.Set(ctx, flowKeyPrefix+flow.State, flow, flowTTL); err != nil {
		return "", err
	}
	// Track the most recent flow so exchange can omit the state.
	if err := m.flows.Set(ctx, lastFlowKey, flow.State, flowTTL); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("code", "true")
	q.Set("client_id", ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", RedirectURI)
	q.Set("scope", Scopes)
	q.Set("code_challenge", challengeS256(flow.Verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("state", flow.State)

	return m.authorizeURL + "?" + q.Encode(), nil
}

// ExchangeCode swaps "code" or "code#state" for the credential and persists
// it. The state selects the pending flow; when omitted the most recently
// started flow is used.
func (m *Manager) ExchangeCode(ctx context.Context, code string) error {
	actualCode, state, _ := strings.Cut(code, "#")

	if state == "" {
		if err := m.flows.Get(ctx, lastFlowKey, &state); err != nil {
			return apperr.OAuthExchangeFailed(fmt.Errorf("no OAuth flow in progress"))
		}
	}

	var flow pendingFlow
	if err := m.flows.Get(ctx, flowKeyPrefix+state, &flow); err != nil {
		return apperr.OAuthExchangeFailed(fmt.Errorf("no OAuth flow in progress"))
	}

	body := map[string]string{
		"grant_type":    "authorization_code",
		"code":          actualCode,
		"state":         state,
		"client_id":     ClientID,
		"redirect_uri":  RedirectURI,
		"code_verifier": flow.Verifier,
	}

	var token tokenResponse
	if err := upstream.SendJSON(ctx, m.http, http.MethodPost, m.tokenURL, nil, body, &token); err != nil {
		return apperr.OAuthExchangeFailed(err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return apperr.OAuthExchangeFailed(fmt.Errorf("token response missing fields"))
	}

	cred := &model.OAuthCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().UnixMilli() + token.ExpiresIn*1000,
	}
	if err := m.repo.Credential().Set(ctx, cred); err != nil {
		return err
	}

	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	_ = m.flows.Delete(ctx, flowKeyPrefix+state)
	_ = m.flows.Delete(ctx, lastFlowKey)

	m.logger.Info("OAuth credential connected")
	return nil
}

// SetPlan stores the detected plan display name on the credential.
func (m *Manager) SetPlan(ctx context.Context, plan string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil || plan == "" {
		return
	}
	m.cred.Plan = sql.NullString{String: plan, Valid: true}
	if err := m.repo.Credential().Set(ctx, m.cred); err != nil {
		m.logger.Warn("failed to persist plan name", zap.Error(err))
	}
}

// load returns the credential snapshot, reading the store on first use.
func (m *Manager) load(ctx context.Context) (*model.OAuthCredential, error) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()
	if cred != nil {
		return cred, nil
	}

	cred, err := m.repo.Credential().Get(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	m.mu.Lock()
	if m.cred == nil {
		m.cred = cred
	}
	cred = m.cred
	m.mu.Unlock()
	return cred, nil
}

// Token returns a valid access token, refreshing when within the expiry
// skew. Concurrent callers share a single refresh; all receive its result.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", apperr.NotAuthenticated()
	}

	if time.Now().Add(refreshSkew).UnixMilli() < cred.ExpiresAt {
		return cred.AccessToken, nil
	}

	return m.doRefresh(ctx, false)
}

// ForceRefresh refreshes regardless of the cached expiry. Used after an
// upstream 401.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	return m.doRefresh(ctx, true)
}

func (m *Manager) doRefresh(ctx context.Context, force bool) (string, error) {
	v, err, _ := m.refresh.Do("credential", func() (interface{}, error) {
		// Re-check under the flight: a previous waiter may have refreshed.
		m.mu.RLock()
		cred := m.cred
		m.mu.RUnlock()
		if cred == nil {
			return "", apperr.NotAuthenticated()
		}
		if !force && time.Now().Add(refreshSkew).UnixMilli() < cred.ExpiresAt {
			return cred.AccessToken, nil
		}

		body := map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": cred.RefreshToken,
			"client_id":     ClientID,
		}

		var token tokenResponse
		if err := upstream.SendJSON(ctx, m.http, http.MethodPost, m.tokenURL, nil, body, &token); err != nil {
			// A rotated or revoked refresh token never recovers; clear the
			// stale credential so the UI shows "Connect" again.
			if ue, ok := err.(*upstream.Error); ok && strings.Contains(string(ue.Body), "invalid_grant") {
				m.logger.Warn("OAuth refresh token is invalid, clearing stale credentials")
				_ = m.repo.Credential().Delete(context.WithoutCancel(ctx))
				m.mu.Lock()
				m.cred = nil
				m.mu.Unlock()
				return "", apperr.NotAuthenticated()
			}
			return "", apperr.OAuthRefreshFailed(err)
		}

		refreshToken := token.RefreshToken
		if refreshToken == "" {
			refreshToken = cred.RefreshToken
		}
		expiresAt := time.Now().UnixMilli() + token.ExpiresIn*1000

		if err := m.repo.Credential().UpdateTokens(ctx, token.AccessToken, refreshToken, expiresAt); err != nil {
			return "", err
		}

		m.mu.Lock()
		m.cred = &model.OAuthCredential{
			AccessToken:  token.AccessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
			Plan:         cred.Plan,
		}
		m.mu.Unlock()

		m.logger.Debug("OAuth access token refreshed")
		return token.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Disconnect deletes the credential and forgets the most recently started
// flow, so a later exchange without a state fails. Flow entries addressed by
// their state are not removed; they expire with their TTL.
func (m *Manager) Disconnect(ctx context.Context) error {
	if err := m.repo.Credential().Delete(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
	_ = m.flows.Delete(ctx, lastFlowKey)
	return nil
}

// Status describes the stored credential for the admin UI.
type Status struct {
	Connected bool   `json:"connected"`
	Plan      string `json:"plan,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return Status{}, err
	}
	if cred == nil {
		return Status{}, nil
	}
	s := Status{Connected: true, ExpiresAt: cred.ExpiresAt}
	if cred.Plan.Valid {
		s.Plan = cred.Plan.String
	}
	return s, nil
}
