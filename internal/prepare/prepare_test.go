package prepare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/claude-gate/internal/config"
)

func TestShouldCloak_Modes(t *testing.T) {
	body := map[string]interface{}{}

	assert.True(t, ShouldCloak(config.CloakAlways, "claude-cli/2.1.32 (external, cli)", body))
	assert.False(t, ShouldCloak(config.CloakNever, "curl/8.0", body))

	// Auto: Claude Code clients are left alone, everyone else is cloaked.
	assert.False(t, ShouldCloak(config.CloakAuto, "claude-cli/2.1.32 (external, cli)", body))
	assert.True(t, ShouldCloak(config.CloakAuto, "python-requests/2.31", body))
}

func TestShouldCloak_DetectsExistingPrefix(t *testing.T) {
	body := map[string]interface{}{
		"system": []interface{}{
			map[string]interface{}{"type": "text", "text": SystemPrefix + " Extra."},
		},
	}
	assert.False(t, ShouldCloak(config.CloakAuto, "some-sdk", body))

	stringBody := map[string]interface{}{"system": SystemPrefix}
	assert.False(t, ShouldCloak(config.CloakAuto, "some-sdk", stringBody))
}

func TestRequest_InjectsSystemPrefix(t *testing.T) {
	body := map[string]interface{}{"system": "You are a helper."}

	Request(body, true)

	system := body["system"].([]interface{})
	require.Len(t, system, 2)
	assert.Equal(t, SystemPrefix, system[0].(map[string]interface{})["text"])
	assert.Equal(t, "You are a helper.", system[1].(map[string]interface{})["text"])
}

func TestRequest_NoCloakLeavesSystem(t *testing.T) {
	body := map[string]interface{}{"system": "You are a helper."}

	Request(body, false)

	assert.Equal(t, "You are a helper.", body["system"])
}

func TestRequest_ExtractsBetas(t *testing.T) {
	body := map[string]interface{}{
		"model": "claude-sonnet-4-5",
		"betas": []interface{}{"beta1", " beta2 ", ""},
	}

	betas := Request(body, false)

	assert.Equal(t, []string{"beta1", "beta2"}, betas)
	assert.NotContains(t, body, "betas")

	stringBody := map[string]interface{}{"betas": "single-beta"}
	assert.Equal(t, []string{"single-beta"}, Request(stringBody, false))
}

func TestRequest_DisablesThinkingWhenToolChoiceForced(t *testing.T) {
	body := map[string]interface{}{
		"tool_choice": map[string]interface{}{"type": "any"},
		"thinking":    map[string]interface{}{"type": "enabled", "budget_tokens": float64(1000)},
	}
	Request(body, false)
	assert.NotContains(t, body, "thinking")

	auto := map[string]interface{}{
		"tool_choice": map[string]interface{}{"type": "auto"},
		"thinking":    map[string]interface{}{"type": "enabled", "budget_tokens": float64(1000)},
	}
	Request(auto, false)
	assert.Contains(t, auto, "thinking")
}

func TestRequest_StripsUnsupportedFields(t *testing.T) {
	body := map[string]interface{}{"context_management": map[string]interface{}{}}
	Request(body, false)
	assert.NotContains(t, body, "context_management")
}

func TestRequest_InjectsFakeUserID(t *testing.T) {
	body := map[string]interface{}{"model": "claude-sonnet-4-5"}

	Request(body, true)

	metadata := body["metadata"].(map[string]interface{})
	id := metadata["user_id"].(string)
	assert.True(t, ValidUserID(id), "generated id %q should be valid", id)
}

func TestRequest_KeepsValidUserID(t *testing.T) {
	valid := "user_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef_account__session_12345678-1234-1234-1234-123456789012"
	body := map[string]interface{}{
		"metadata": map[string]interface{}{"user_id": valid},
	}

	Request(body, true)

	assert.Equal(t, valid, body["metadata"].(map[string]interface{})["user_id"])
}

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID(FakeUserID()))
	assert.False(t, ValidUserID("invalid"))
	assert.False(t, ValidUserID("user_short_account__session_uuid"))
	assert.False(t, ValidUserID(""))
}

func TestRequest_SanitizesSystemText(t *testing.T) {
	body := map[string]interface{}{
		"system": "You are OpenCode, an AI assistant. Use opencode tools.",
	}

	Request(body, true)

	system := body["system"].([]interface{})
	text := system[1].(map[string]interface{})["text"].(string)
	assert.NotContains(t, text, "OpenCode")
	assert.NotContains(t, text, "opencode")
	assert.Contains(t, text, "Claude Code")
}

func TestCountTokens_LighterPipeline(t *testing.T) {
	body := map[string]interface{}{
		"betas":    []interface{}{"b1"},
		"thinking": map[string]interface{}{"type": "enabled"},
	}

	betas := CountTokens(body, true)

	assert.Equal(t, []string{"b1"}, betas)
	// count_tokens keeps thinking untouched and never injects metadata.
	assert.Contains(t, body, "thinking")
	assert.NotContains(t, body, "metadata")

	system := body["system"].([]interface{})
	assert.Equal(t, SystemPrefix, system[0].(map[string]interface{})["text"])
}
