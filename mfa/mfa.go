// Package mfa implements time-based one-time-password enrollment and
// verification, plus single-use backup code generation.
//
// Codes use 30-second steps. The configured skew bounds clock drift: skew 1
// accepts codes from the previous and next step only. That is a deliberate,
// bounded replay window, not unlimited tolerance.
package mfa

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period     = 30
	digits     = otp.DigitsSix
	secretSize = 20
)

// DefaultBackupCodeCount matches the enrollment contract: ten codes per
// account, returned in plaintext exactly once.
const DefaultBackupCodeCount = 10

// Config holds MFA verification parameters.
type Config struct {
	// Issuer is the provisioning label shown in authenticator apps.
	Issuer string
	// Skew is the number of adjacent 30-second steps accepted around the
	// current one.
	Skew uint
}

// Service generates secrets and verifies TOTP codes. Stateless and safe for
// concurrent use.
type Service struct {
	config Config
}

// New returns a Service. A zero Skew is replaced with the default of 1.
func New(cfg Config) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = "securepay"
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	return &Service{config: cfg}
}

// GenerateSecret returns a fresh base32-encoded TOTP secret.
func (s *Service) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: "pending",
		Period:      period,
		SecretSize:  secretSize,
		Digits:      digits,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth:// URI for QR rendering by an external
// collaborator. The secret itself is never logged.
func (s *Service) ProvisioningURI(secret, accountLabel string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", errors.New("malformed totp secret")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: accountLabel,
		Period:      period,
		Secret:      raw,
		Digits:      digits,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// VerifyCode reports whether code is valid for secret at the current time.
func (s *Service) VerifyCode(secret, code string) bool {
	return s.VerifyCodeAt(secret, code, time.Now())
}

// VerifyCodeAt verifies code against secret at an explicit instant. The
// configured skew widens acceptance to adjacent steps.
func (s *Service) VerifyCodeAt(secret, code string, at time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}

	ok, err := totp.ValidateCustom(trimmed, secret, at, totp.ValidateOpts{
		Period:    period,
		Skew:      s.config.Skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// GenerateBackupCodes returns count high-entropy recovery codes, each 8
// uppercase hex characters. Generation is independent of any TOTP secret.
// Callers must persist them only in encrypted form.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		codes = append(codes, strings.ToUpper(hex.EncodeToString(raw)))
	}
	return codes, nil
}
