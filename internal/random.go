package internal

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
)

var (
	errCodeDigits = errors.New("invalid code length")
	errSecretSize = errors.New("invalid secret size")
)

// NewOTP returns a uniformly random numeric code of the given length.
// Bytes of 250 and above are discarded so every digit is equally likely.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errCodeDigits
	}

	code := make([]byte, 0, digits)
	var buf [16]byte
	for len(code) < digits {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		for _, v := range buf {
			if v >= 250 {
				continue
			}
			code = append(code, '0'+v%10)
			if len(code) == digits {
				break
			}
		}
	}
	return string(code), nil
}

// NewSecret returns n random bytes encoded as unpadded base32, the form
// authenticator apps accept for enrollment.
func NewSecret(n int) (string, error) {
	if n <= 0 {
		return "", errSecretSize
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}
