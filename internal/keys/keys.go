// Package keys generates and hashes proxy API-key secrets.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SecretPrefix marks every secret this proxy issues.
const SecretPrefix = "sk-gate-"

// GenerateSecret mints a new plaintext secret. The plaintext is shown to
// the operator exactly once; only the hash is stored.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return SecretPrefix + base64.RawURLEncoding.EncodeToString(b)
}

// Hash returns the hex sha256 of a secret, the stored lookup form.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HasPrefix reports whether a presented credential looks like one of ours.
func HasPrefix(secret string) bool {
	return strings.HasPrefix(secret, SecretPrefix)
}
