package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// tokenSecretBytes gives 256 bits of entropy per opaque token.
const tokenSecretBytes = 32

// NewOpaqueToken returns a random secret for refresh, reset, and
// verification tokens. The value is never derived from user data.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest stored in place of the secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokenHashEqual compares a stored digest with the digest of a presented
// secret in constant time.
func TokenHashEqual(storedHash, secret string) bool {
	actual := HashToken(secret)
	if len(storedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(actual)) == 1
}

// JoinRefreshToken builds the client-visible refresh credential from the
// record id and the secret.
func JoinRefreshToken(id, secret string) string {
	return id + "." + secret
}

// SplitRefreshToken parses a client-presented refresh credential.
func SplitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}
