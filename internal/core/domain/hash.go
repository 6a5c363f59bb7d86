package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA-256 digest of text.
// Input is hashed byte for byte with no normalisation.
// Empty input returns "" so callers can treat it as "skip dedup".
func ContentHash(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
