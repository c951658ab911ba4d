package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	emailPrefix = "email_"
	phonePrefix = "phone_"
	anonPrefix  = "anon_"
)

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only the ASCII digits of a number.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

// HashEmail returns the lookup key for an address, or "" when it normalizes
// to nothing.
func HashEmail(email string) string {
	return prefixedDigest(emailPrefix, NormalizeEmail(email))
}

// HashPhone returns the lookup key for a number, or "" when it has no
// digits.
func HashPhone(phone string) string {
	return prefixedDigest(phonePrefix, NormalizePhone(phone))
}

func prefixedDigest(prefix, normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(sum[:])
}
