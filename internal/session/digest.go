package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// digestSalt binds the digest to this application so the same password
// on another service yields a different hash.
const digestSalt = "llmwatch"

// PasswordDigest computes the one-way, salted, username-bound digest
// that is sent in place of the plaintext password. The username is
// lowercased first so the digest matches however the operator types it.
func PasswordDigest(username, password string) string {
	sum := sha256.Sum256([]byte(digestSalt + ":" + strings.ToLower(username) + ":" + password))
	return hex.EncodeToString(sum[:])
}
