package util

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// SafeTruncate returns at most maxLen bytes of s. It is used to log a short
// prefix of identifiers without risking an index panic. A negative maxLen
// yields "".
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL removes trailing slashes so that "https://x/" and "https://x"
// compare equal.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// RandomString returns a base64url string carrying n random bytes.
// It panics if the system random source fails.
func RandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
