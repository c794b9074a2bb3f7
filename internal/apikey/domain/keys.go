package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// KeyPrefix starts every plaintext key: tl_<key id suffix>_<secret>.
const KeyPrefix = "tl_"

// FormatAPIKey builds the plaintext key handed to the caller once.
func FormatAPIKey(keyID, secretHex string) string {
	return KeyPrefix + strings.ToLower(strings.TrimPrefix(keyID, "key_")) + "_" + secretHex
}

// HasKeyPrefix rejects tokens that cannot be ours before any lookup.
func HasKeyPrefix(raw string) bool {
	return strings.HasPrefix(raw, KeyPrefix) && len(raw) > len(KeyPrefix)
}

// HashAPIKey is the stored form of a key. Only the hash is persisted.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func MatchesHash(raw, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(raw)), []byte(hash)) == 1
}
