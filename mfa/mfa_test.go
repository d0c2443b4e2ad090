package mfa

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestGenerateSecretIsBase32(t *testing.T) {
	svc := New(Config{Issuer: "test"})

	secret, err := svc.GenerateSecret()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Equal(t, strings.ToUpper(secret), secret)

	other, err := svc.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestVerifyCodeWithinSkewWindow(t *testing.T) {
	svc := New(Config{Issuer: "test", Skew: 1})

	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)

	assert.True(t, svc.VerifyCodeAt(secret, codeAt(t, secret, now), now), "current step")
	assert.True(t, svc.VerifyCodeAt(secret, codeAt(t, secret, now.Add(-period*time.Second)), now), "previous step")
	assert.True(t, svc.VerifyCodeAt(secret, codeAt(t, secret, now.Add(period*time.Second)), now), "next step")
}

func TestVerifyCodeRejectsOutsideSkewWindow(t *testing.T) {
	svc := New(Config{Issuer: "test", Skew: 1})

	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	code := codeAt(t, secret, now)

	// The same code replayed two steps later is outside the window.
	assert.False(t, svc.VerifyCodeAt(secret, code, now.Add(2*period*time.Second)))
	assert.False(t, svc.VerifyCodeAt(secret, code, now.Add(-2*period*time.Second)))
}

func TestVerifyCodeRejectsGarbage(t *testing.T) {
	svc := New(Config{Issuer: "test"})

	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	assert.False(t, svc.VerifyCodeAt(secret, "", now))
	assert.False(t, svc.VerifyCodeAt(secret, "abcdef", now))
	assert.False(t, svc.VerifyCodeAt(secret, "000000", now.Add(time.Hour)))
}

func TestProvisioningURI(t *testing.T) {
	svc := New(Config{Issuer: "securepay"})

	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	uri, err := svc.ProvisioningURI(secret, "user@example.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"), uri)
	assert.Contains(t, uri, "issuer=securepay")
	assert.Contains(t, uri, "secret="+secret)
}

func TestProvisioningURIRejectsMalformedSecret(t *testing.T) {
	svc := New(Config{Issuer: "securepay"})

	_, err := svc.ProvisioningURI("not base32 !!!", "user@example.com")
	require.Error(t, err)
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		assert.Len(t, code, 8)
		assert.Equal(t, strings.ToUpper(code), code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, len(codes), "codes must be unique")
}

func TestGenerateBackupCodesDefaultsCount(t *testing.T) {
	codes, err := GenerateBackupCodes(0)
	require.NoError(t, err)
	assert.Len(t, codes, DefaultBackupCodeCount)
}
