package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/claude-gate/internal/apperr"
	"github.com/nulzo/claude-gate/internal/cache/memory"
	"github.com/nulzo/claude-gate/internal/oauth"
	"github.com/nulzo/claude-gate/internal/store"
	"github.com/nulzo/claude-gate/internal/store/model"
	"github.com/nulzo/claude-gate/internal/store/sqlite"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestStartFlow_AuthorizeURL(t *testing.T) {
	repo := newTestRepo(t)
	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop())

	raw, err := mgr.StartFlow(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, oauth.ClientID, q.Get("client_id"))
	assert.Equal(t, oauth.RedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, oauth.Scopes, q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestExchangeCode_PersistsCredential(t *testing.T) {
	repo := newTestRepo(t)

	var gotBody map[string]string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"expires_in": 3600,
			"token_type": "Bearer"
		}`))
	}))
	defer tokenServer.Close()

	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop(),
		oauth.WithEndpoints("http://authorize.invalid", tokenServer.URL))

	raw, err := mgr.StartFlow(context.Background())
	require.NoError(t, err)
	u, _ := url.Parse(raw)
	state := u.Query().Get("state")

	require.NoError(t, mgr.ExchangeCode(context.Background(), "the-code#"+state))

	assert.Equal(t, "authorization_code", gotBody["grant_type"])
	assert.Equal(t, "the-code", gotBody["code"])
	assert.Equal(t, state, gotBody["state"])
	assert.NotEmpty(t, gotBody["code_verifier"])

	cred, err := repo.Credential().Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "at-1", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken)
	assert.Greater(t, cred.ExpiresAt, time.Now().UnixMilli())

	token, err := mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-1", token)
}

func TestExchangeCode_StateOptional(t *testing.T) {
	repo := newTestRepo(t)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop(),
		oauth.WithEndpoints("http://authorize.invalid", tokenServer.URL))

	_, err := mgr.StartFlow(context.Background())
	require.NoError(t, err)

	// No #state suffix: the most recent flow is used.
	require.NoError(t, mgr.ExchangeCode(context.Background(), "bare-code"))
}

func TestExchangeCode_NoFlow(t *testing.T) {
	repo := newTestRepo(t)
	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop())

	err := mgr.ExchangeCode(context.Background(), "code")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindOAuthExchangeFailed, ae.Kind)
}

func TestToken_NotAuthenticated(t *testing.T) {
	repo := newTestRepo(t)
	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop())

	_, err := mgr.Token(context.Background())
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotAuthenticated, ae.Kind)
}

// Fifty concurrent requests over an expired token must produce exactly one
// refresh call upstream, and every caller gets the fresh token.
func TestToken_RefreshSerialization(t *testing.T) {
	repo := newTestRepo(t)

	var refreshCalls atomic.Int64
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.Equal(t, "rt-old", body["refresh_token"])
		refreshCalls.Add(1)
		// Slow response widens the race window.
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	// Credential expired 10 seconds ago.
	require.NoError(t, repo.Credential().Set(context.Background(), &model.OAuthCredential{
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		ExpiresAt:    time.Now().UnixMilli() - 10_000,
	}))

	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop(),
		oauth.WithEndpoints("http://authorize.invalid", tokenServer.URL))

	const n = 50
	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = mgr.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), refreshCalls.Load(), "exactly one refresh upstream")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-new", tokens[i])
	}

	// The rotated refresh token was persisted.
	cred, err := repo.Credential().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rt-new", cred.RefreshToken)
}

func TestToken_InvalidGrantClearsCredential(t *testing.T) {
	repo := newTestRepo(t)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	require.NoError(t, repo.Credential().Set(context.Background(), &model.OAuthCredential{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().UnixMilli() - 1000,
	}))

	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop(),
		oauth.WithEndpoints("http://authorize.invalid", tokenServer.URL))

	_, err := mgr.Token(context.Background())
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotAuthenticated, ae.Kind)

	cred, err := repo.Credential().Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cred, "stale credential should be cleared")
}

func TestDisconnect(t *testing.T) {
	repo := newTestRepo(t)
	mgr := oauth.NewManager(repo, memory.New(), zap.NewNop())

	require.NoError(t, repo.Credential().Set(context.Background(), &model.OAuthCredential{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().UnixMilli() + 3_600_000,
	}))

	token, err := mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", token)

	require.NoError(t, mgr.Disconnect(context.Background()))

	_, err = mgr.Token(context.Background())
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindNotAuthenticated, ae.Kind)

	status, err := mgr.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)
}
