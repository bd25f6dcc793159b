package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// urlHashLength is the number of hex characters kept from the SHA-256 digest
const urlHashLength = 24

// CalculateStringSHA256 computes the SHA-256 hash of a string.
func CalculateStringSHA256(content string) string {
	hash := sha256.New()
	hash.Write([]byte(content))
	return hex.EncodeToString(hash.Sum(nil))
}

// URLHash derives the cache/index key of an already normalized URL
func URLHash(normalizedURL string) string {
	return CalculateStringSHA256(normalizedURL)[:urlHashLength]
}
