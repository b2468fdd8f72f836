package apperr

import (
	"fmt"
	"net/http"

	"github.com/nulzo/claude-gate/pkg/schema"
)

// Kind enumerates the proxy error taxonomy. Each kind carries a fixed HTTP
// status and a fixed Anthropic error type, so rendering is a pure mapping;
// the exception is KindUpstreamStatus, which forwards the upstream code.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindModelForbidden
	KindQuotaExceeded
	KindNotAuthenticated
	KindOAuthExchangeFailed
	KindOAuthRefreshFailed
	KindUpstreamStatus
	KindUpstreamTransport
	KindCanceled
	KindInternal
)

// Error is the proxy-surface error shape. It renders as either the OpenAI or
// the Anthropic error envelope depending on the ingress dialect.
type Error struct {
	Kind    Kind
	Message string

	// UpstreamCode holds the upstream HTTP status for KindUpstreamStatus.
	UpstreamCode int
	// UpstreamBody holds the raw upstream error body, forwarded verbatim.
	UpstreamBody []byte

	// Quota details for KindQuotaExceeded.
	Window string
	Limit  int64
	Used   int64
	// ResetAt is the epoch-ms reset hint for the exceeded window (0 = none).
	ResetAt int64

	// Log is the internal cause, never sent to clients.
	Log error
}

func (e *Error) Error() string {
	if e.Log != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Log)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Log }

// HTTPStatus maps the kind to the status surfaced to the client.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindModelForbidden:
		return http.StatusForbidden
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindNotAuthenticated:
		return http.StatusServiceUnavailable
	case KindOAuthRefreshFailed, KindUpstreamTransport:
		return http.StatusBadGateway
	case KindOAuthExchangeFailed:
		return http.StatusBadGateway
	case KindUpstreamStatus:
		if e.UpstreamCode >= 400 {
			return e.UpstreamCode
		}
		return http.StatusBadGateway
	case KindCanceled:
		// Nginx's non-standard "client closed request".
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) anthropicType() string {
	switch e.Kind {
	case KindBadRequest:
		return "invalid_request_error"
	case KindUnauthorized:
		return "authentication_error"
	case KindModelForbidden:
		return "permission_error"
	case KindQuotaExceeded:
		return "rate_limit_error"
	default:
		return "api_error"
	}
}

// OpenAIBody renders the OpenAI-dialect error envelope.
func (e *Error) OpenAIBody() interface{} {
	if e.Kind == KindQuotaExceeded {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"type":    "rate_limit_error",
				"message": e.Message,
				"window":  e.Window,
				"limit":   e.Limit,
				"used":    e.Used,
			},
		}
	}
	return schema.ErrorResponse{Error: schema.ErrorBody{
		Type:    e.anthropicType(),
		Message: e.Message,
	}}
}

// AnthropicBody renders the Anthropic-dialect error envelope.
func (e *Error) AnthropicBody() interface{} {
	if e.Kind == KindQuotaExceeded {
		return map[string]interface{}{
			"type": "error",
			"error": map[string]interface{}{
				"type":    "rate_limit_error",
				"message": e.Message,
				"window":  e.Window,
				"limit":   e.Limit,
				"used":    e.Used,
			},
		}
	}
	return schema.AnthropicError{
		Type: "error",
		Error: schema.AnthropicErrorBody{
			Type:    e.anthropicType(),
			Message: e.Message,
		},
	}
}

// --- Constructors ---

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func ModelForbidden(model string) *Error {
	return &Error{Kind: KindModelForbidden, Message: fmt.Sprintf("model %q is not allowed for this key", model)}
}

func QuotaExceeded(window string, limit, used, resetAt int64) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("%s cost limit exceeded (%d/%d microdollars)", window, used, limit),
		Window:  window,
		Limit:   limit,
		Used:    used,
		ResetAt: resetAt,
	}
}

func NotAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated, Message: "no upstream OAuth credential configured"}
}

func OAuthExchangeFailed(err error) *Error {
	return &Error{Kind: KindOAuthExchangeFailed, Message: "OAuth code exchange failed", Log: err}
}

func OAuthRefreshFailed(err error) *Error {
	return &Error{Kind: KindOAuthRefreshFailed, Message: "OAuth token refresh failed", Log: err}
}

func UpstreamStatus(code int, body []byte) *Error {
	return &Error{
		Kind:         KindUpstreamStatus,
		Message:      fmt.Sprintf("upstream returned status %d", code),
		UpstreamCode: code,
		UpstreamBody: body,
	}
}

func UpstreamTransport(err error) *Error {
	return &Error{Kind: KindUpstreamTransport, Message: "failed to contact upstream", Log: err}
}

func Canceled() *Error {
	return &Error{Kind: KindCanceled, Message: "request canceled"}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Log: err}
}
