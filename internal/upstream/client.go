package upstream

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"
)

// Anthropic endpoints. The messages endpoints carry ?beta=true so the OAuth
// backend accepts the beta header set below.
const (
	MessagesURL    = "https://api.anthropic.com/v1/messages?beta=true"
	CountTokensURL = "https://api.anthropic.com/v1/messages/count_tokens?beta=true"
	UsageURL       = "https://api.anthropic.com/api/oauth/usage"
	ProfileURL     = "https://api.anthropic.com/api/oauth/profile"

	// Version is the anthropic-version header value.
	Version = "2023-06-01"

	// OAuthBetaHeader is the beta feature set Claude Code 2.1.32 sends.
	// Includes adaptive-thinking for Opus 4.6 support.
	OAuthBetaHeader = "claude-code-20250219,oauth-2025-04-20,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14,prompt-caching-scope-2026-01-05,adaptive-thinking-2026-01-28"

	// UserAgent mimics the Claude CLI so OAuth requests pass.
	UserAgent = "claude-cli/2.1.32 (external, cli)"
)

// Client issues requests to the Anthropic API with OAuth headers.
type Client struct {
	http *http.Client

	messagesURL    string
	countTokensURL string
	usageURL       string
	profileURL     string
}

type Option func(*Client)

// WithBaseURL redirects all endpoints to a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimRight(base, "/")
		c.messagesURL = base + "/v1/messages"
		c.countTokensURL = base + "/v1/messages/count_tokens"
		c.usageURL = base + "/api/oauth/usage"
		c.profileURL = base + "/api/oauth/profile"
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		// No overall timeout: long reasoning responses stream for many
		// minutes. Cancellation comes from the request context; the
		// transport bounds connect and header latency.
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 10 * time.Minute,
			},
		},
		messagesURL:    MessagesURL,
		countTokensURL: CountTokensURL,
		usageURL:       UsageURL,
		profileURL:     ProfileURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BetaHeader merges the base beta set with extras from the request body,
// skipping duplicates.
func BetaHeader(extras []string) string {
	if len(extras) == 0 {
		return OAuthBetaHeader
	}
	existing := make(map[string]bool)
	for _, b := range strings.Split(OAuthBetaHeader, ",") {
		existing[b] = true
	}
	var sb strings.Builder
	sb.WriteString(OAuthBetaHeader)
	for _, beta := range extras {
		beta = strings.TrimSpace(beta)
		if beta != "" && !existing[beta] {
			sb.WriteByte(',')
			sb.WriteString(beta)
			existing[beta] = true
		}
	}
	return sb.String()
}

// Messages POSTs a prepared request body to the messages endpoint.
func (c *Client) Messages(ctx context.Context, token string, betas []string, stream bool, body []byte) (*http.Response, error) {
	return c.post(ctx, c.messagesURL, token, betas, stream, body)
}

// CountTokens POSTs to the count_tokens endpoint. Never streaming.
func (c *Client) CountTokens(ctx context.Context, token string, betas []string, body []byte) (*http.Response, error) {
	return c.post(ctx, c.countTokensURL, token, betas, false, body)
}

func (c *Client) post(ctx context.Context, url, token string, betas []string, stream bool, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	accept := "application/json"
	if stream {
		accept = "text/event-stream"
	}

	h := req.Header
	h.Set("anthropic-version", Version)
	h.Set("content-type", "application/json")
	h.Set("authorization", "Bearer "+token)
	h.Set("anthropic-beta", BetaHeader(betas))
	h.Set("user-agent", UserAgent)
	h.Set("accept", accept)
	// The OAuth backend fingerprints the official SDK; these match the
	// headers the Claude CLI emits.
	h.Set("anthropic-dangerous-direct-browser-access", "true")
	h.Set("x-app", "cli")
	h.Set("x-stainless-helper-method", "stream")
	h.Set("x-stainless-retry-count", "0")
	h.Set("x-stainless-runtime", "node")
	h.Set("x-stainless-runtime-version", "v24.3.0")
	h.Set("x-stainless-package-version", "0.55.1")
	h.Set("x-stainless-lang", "js")
	h.Set("x-stainless-arch", "x86_64")
	h.Set("x-stainless-os", "Linux")
	h.Set("x-stainless-timeout", "60")

	return c.http.Do(req)
}
