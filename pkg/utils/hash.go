package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash computes the SHA-256 of extracted text, used to tell whether a re-crawl changed anything.
func ContentHash(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
