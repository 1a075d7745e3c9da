package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Identity hashes a normalized email so that store keys and logs never carry the address.
// Returns lowercase hex string (64 chars), or "" for an empty input.
func Identity(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Short is the first 12 hex chars of Identity, enough to correlate log lines.
func Short(email string) string {
	id := Identity(email)
	if len(id) < 12 {
		return id
	}
	return id[:12]
}

// MaskEmail keeps the first character of the local part and the domain (j***@example.com).
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
