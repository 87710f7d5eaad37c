package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBindingValue hashes a client attribute so raw values never reach
// storage.
func HashBindingValue(v string) [32]byte {
	return sha256.Sum256([]byte(v))
}

// ClientTag derives a short stable fingerprint from a client's IP and user
// agent. It is a correlation hint for the attack detector, not an
// authenticator.
func ClientTag(ip, userAgent string) string {
	if ip == "" && userAgent == "" {
		return ""
	}
	sum := HashBindingValue(ip + "\x00" + userAgent)
	return hex.EncodeToString(sum[:8])
}
