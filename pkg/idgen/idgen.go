package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/samborkent/uuidv7"
)

// NewMatchID returns a time-ordered, collision resistant match id.
func NewMatchID() string {
	return "m_" + strings.ReplaceAll(uuidv7.New().String(), "-", "")
}

// NewKey returns a store key that sorts by creation time.
func NewKey() string {
	return uuidv7.New().String()
}

// TokenKey derives a stable store key for a device token. Raw tokens contain
// characters the realtime database rejects in keys.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SanitizeKey replaces characters that are not allowed in store keys.
func SanitizeKey(key string) string {
	return keyReplacer.Replace(strings.TrimSpace(key))
}

var keyReplacer = strings.NewReplacer(".", "_", "$", "_", "#", "_", "[", "_", "]", "_", "/", "_")
