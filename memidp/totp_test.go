package memidp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B, SHA1 seed.
var rfcSecret = secretEncoding.EncodeToString([]byte("12345678901234567890"))

func TestTOTPMatchesRFCVectors(t *testing.T) {
	cases := []struct {
		unix int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}
	for _, tc := range cases {
		got, err := totpCode(rfcSecret, time.Unix(tc.unix, 0), 8)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "t=%d", tc.unix)
	}
}

func TestVerifyTOTPWindow(t *testing.T) {
	now := time.Unix(1111111111, 0)
	code, err := totpCode(rfcSecret, now.Add(-totpPeriod*time.Second), 6)
	require.NoError(t, err)

	ok, counter := verifyTOTP(rfcSecret, code, now, 6)
	assert.True(t, ok)
	assert.Equal(t, now.Unix()/totpPeriod-1, counter)

	ok, _ = verifyTOTP(rfcSecret, code, now.Add(2*totpPeriod*time.Second), 6)
	assert.False(t, ok)

	ok, _ = verifyTOTP(rfcSecret, "12345", now, 6)
	assert.False(t, ok)
	ok, _ = verifyTOTP("not base32!", code, now, 6)
	assert.False(t, ok)
}

func TestProvisionURI(t *testing.T) {
	uri := provisionURI("Acme", "a@x.com", "ABC", 6)
	assert.Contains(t, uri, "otpauth://totp/Acme:a@x.com?")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}
