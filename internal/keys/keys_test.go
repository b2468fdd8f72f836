package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSecret(t *testing.T) {
	a := GenerateSecret()
	b := GenerateSecret()

	assert.True(t, HasPrefix(a))
	assert.NotEqual(t, a, b)
	// 32 random bytes base64url on top of the prefix.
	assert.Greater(t, len(a), len(SecretPrefix)+40)
}

func TestHashIsStable(t *testing.T) {
	secret := GenerateSecret()
	assert.Equal(t, Hash(secret), Hash(secret))
	assert.NotEqual(t, Hash(secret), Hash(secret+"x"))
	assert.Len(t, Hash(secret), 64)
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("sk-gate-abc"))
	assert.False(t, HasPrefix("sk-ant-abc"))
	assert.False(t, HasPrefix(""))
}
