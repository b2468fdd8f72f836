// Package prepare applies the outbound transformations every Anthropic
// request needs before it is forwarded: beta extraction, thinking guards,
// Claude Code cloaking and system sanitization.
package prepare

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/nulzo/claude-gate/internal/config"
)

// SystemPrefix is the Claude Code identity line injected when cloaking.
const SystemPrefix = "You are Claude Code, Anthropic's official CLI for Claude."

// ShouldCloak decides whether to inject the Claude Code prefix. In auto
// mode a client that already is Claude Code (by user-agent or an existing
// prefix) is left alone.
func ShouldCloak(mode config.CloakMode, userAgent string, body map[string]interface{}) bool {
	switch mode {
	case config.CloakAlways:
		return true
	case config.CloakNever:
		return false
	}

	if strings.Contains(strings.ToLower(userAgent), "claude-cli") {
		return false
	}
	if systemHasPrefix(body) {
		return false
	}
	return true
}

func systemHasPrefix(body map[string]interface{}) bool {
	switch system := body["system"].(type) {
	case string:
		return strings.HasPrefix(system, SystemPrefix)
	case []interface{}:
		if len(system) == 0 {
			return false
		}
		if block, ok := system[0].(map[string]interface{}); ok {
			if text, ok := block["text"].(string); ok {
				return strings.HasPrefix(text, SystemPrefix)
			}
		}
	}
	return false
}

// Request runs the full preparation pipeline in place and returns the betas
// extracted from the body (for the anthropic-beta header).
func Request(body map[string]interface{}, cloak bool) []string {
	betas := extractBetas(body)
	disableThinkingIfForced(body)
	if cloak {
		injectFakeUserID(body)
	}
	// Tool-name prefixing is not gated by cloak; the OAuth backend requires
	// it on every request.
	TransformRequestToolNames(body)
	if cloak {
		injectSystemPrefix(body)
	} else {
		sanitizeSystemOnly(body)
	}
	// Claude Code may send newer fields the OAuth backend rejects.
	delete(body, "context_management")
	return betas
}

// CountTokens runs the lighter pipeline for count_tokens requests, which
// support neither metadata nor thinking.
func CountTokens(body map[string]interface{}, cloak bool) []string {
	betas := extractBetas(body)
	TransformRequestToolNames(body)
	if cloak {
		injectSystemPrefix(body)
	} else {
		sanitizeSystemOnly(body)
	}
	return betas
}

// extractBetas pulls the betas array (or string) out of the body.
func extractBetas(body map[string]interface{}) []string {
	var betas []string
	switch v := body["betas"].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					betas = append(betas, s)
				}
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			betas = append(betas, s)
		}
	}
	delete(body, "betas")
	return betas
}

// disableThinkingIfForced removes thinking when tool_choice forces tool
// use; the API rejects the combination ("any" and "tool", not "auto").
func disableThinkingIfForced(body map[string]interface{}) {
	toolChoice, ok := body["tool_choice"].(map[string]interface{})
	if !ok {
		return
	}
	if t, _ := toolChoice["type"].(string); t == "any" || t == "tool" {
		delete(body, "thinking")
	}
}

// FakeUserID builds a metadata user id in Claude Code format:
// user_[64-hex]_account__session_[uuid-v4].
func FakeUserID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "user_" + hex.EncodeToString(b) + "_account__session_" + uuid.NewString()
}

// ValidUserID reports whether a user id matches the Claude Code format.
func ValidUserID(id string) bool {
	hexPart, uuidPart, found := strings.Cut(id, "_account__session_")
	if !found {
		return false
	}
	h, ok := strings.CutPrefix(hexPart, "user_")
	if !ok || len(h) != 64 {
		return false
	}
	for _, c := range h {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return len(uuidPart) == 36 && strings.Count(uuidPart, "-") == 4
}

func injectFakeUserID(body map[string]interface{}) {
	metadata, _ := body["metadata"].(map[string]interface{})
	if metadata != nil {
		if id, ok := metadata["user_id"].(string); ok && id != "" && ValidUserID(id) {
			return
		}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
		body["metadata"] = metadata
	}
	metadata["user_id"] = FakeUserID()
}

// injectSystemPrefix prepends the Claude Code identity as the first system
// block, normalizing the system field to block form.
func injectSystemPrefix(body map[string]interface{}) {
	prefix := map[string]interface{}{"type": "text", "text": SystemPrefix}

	var blocks []interface{}
	switch system := body["system"].(type) {
	case nil:
		blocks = []interface{}{prefix}
	case string:
		blocks = []interface{}{prefix, map[string]interface{}{"type": "text", "text": system}}
	case []interface{}:
		blocks = append([]interface{}{prefix}, system...)
	default:
		blocks = []interface{}{prefix, system}
	}

	body["system"] = sanitizeSystem(blocks)
}

func sanitizeSystemOnly(body map[string]interface{}) {
	switch system := body["system"].(type) {
	case []interface{}:
		body["system"] = sanitizeSystem(system)
	case string:
		body["system"] = sanitizeText(system)
	}
}

// sanitizeSystem rewrites OpenCode spellings in system text blocks; the
// OAuth backend blocks requests that mention it.
func sanitizeSystem(blocks []interface{}) []interface{} {
	for _, item := range blocks {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := block["type"].(string); t != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			block["text"] = sanitizeText(text)
		}
	}
	return blocks
}

func sanitizeText(text string) string {
	text = strings.ReplaceAll(text, "OpenCode", "Claude Code")
	text = strings.ReplaceAll(text, "opencode", "Claude")
	text = strings.ReplaceAll(text, "Opencode", "Claude")
	text = strings.ReplaceAll(text, "OPENCODE", "Claude")
	return text
}
