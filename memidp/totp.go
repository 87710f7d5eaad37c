package memidp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// provisionURI builds the otpauth:// enrollment URI authenticator apps scan.
func provisionURI(issuer, email, secret string, digits int) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(totpPeriod))
	v.Set("digits", strconv.Itoa(digits))
	v.Set("algorithm", "SHA1")
	return "otpauth://totp/" + url.PathEscape(issuer+":"+email) + "?" + v.Encode()
}

// totpCode returns the code for secret in the period containing at.
func totpCode(secret string, at time.Time, digits int) (string, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", err
	}
	return hotp(raw, at.Unix()/totpPeriod, digits), nil
}

// verifyTOTP checks code against the periods around now. It returns the
// matched counter so callers can refuse replays of the same period.
func verifyTOTP(secret, code string, now time.Time, digits int) (bool, int64) {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return false, 0
	}
	raw, err := secretEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil || len(raw) == 0 {
		return false, 0
	}
	base := now.Unix() / totpPeriod
	for step := int64(-totpSkew); step <= totpSkew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(raw, counter, digits)), []byte(code)) == 1 {
			return true, counter
		}
	}
	return false, 0
}

func hotp(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := uint32(sum[offset]&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(1)
	for range digits {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}
