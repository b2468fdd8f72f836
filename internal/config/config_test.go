package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLAUDE_GATE_ADMIN_USERNAME", "admin")
	t.Setenv("CLAUDE_GATE_ADMIN_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "4096", cfg.Server.Port)
	assert.Equal(t, CloakAuto, cfg.CloakMode)
	assert.True(t, cfg.CORS.LocalhostOnly())
	assert.NotEmpty(t, cfg.DataDir)
	assert.True(t, cfg.IsLocalhostBind())
}

func TestLoad_RequiresAdminCredentials(t *testing.T) {
	t.Setenv("CLAUDE_GATE_ADMIN_USERNAME", "")
	t.Setenv("CLAUDE_GATE_ADMIN_PASSWORD", "")

	_, err := Load()
	assert.Error(t, err)

	// Unless admin auth is explicitly disabled.
	t.Setenv("CLAUDE_GATE_DISABLE_AUTH", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DisableAuth)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLAUDE_GATE_ADMIN_USERNAME", "admin")
	t.Setenv("CLAUDE_GATE_ADMIN_PASSWORD", "secret")
	t.Setenv("CLAUDE_GATE_HOST", "0.0.0.0")
	t.Setenv("CLAUDE_GATE_PORT", "9000")
	t.Setenv("CLAUDE_GATE_CLOAK_MODE", "never")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, CloakNever, cfg.CloakMode)
	assert.False(t, cfg.IsLocalhostBind())
}

func TestLoad_InvalidCloakMode(t *testing.T) {
	t.Setenv("CLAUDE_GATE_ADMIN_USERNAME", "admin")
	t.Setenv("CLAUDE_GATE_ADMIN_PASSWORD", "secret")
	t.Setenv("CLAUDE_GATE_CLOAK_MODE", "sometimes")

	_, err := Load()
	assert.Error(t, err)
}

func TestParseCORS(t *testing.T) {
	assert.True(t, parseCORS("localhost").LocalhostOnly())
	assert.True(t, parseCORS("").LocalhostOnly())

	all := parseCORS("*")
	assert.True(t, all.AllowAll)

	list := parseCORS("https://a.example, https://b.example")
	assert.False(t, list.AllowAll)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, list.Origins)
}
