package authcore

import (
	"errors"
	"time"

	"github.com/securepay/authcore/password"
)

// Config is the process-wide configuration, constructed once at startup and
// treated as read-only afterwards. There is no hidden global state: every
// component receives its slice of this struct by injection.
type Config struct {
	// SigningSecret signs access and refresh tokens. Rotating it invalidates
	// all outstanding tokens.
	SigningSecret []byte
	// EncryptionSeed derives the AES-256 key protecting fields at rest
	// (MFA backup codes). Never logged.
	EncryptionSeed string

	Token     TokenConfig
	Session   SessionConfig
	Password  password.Config
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	MFA       MFAConfig
	Audit     AuditConfig
}

// TokenConfig holds token TTLs.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SessionConfig holds session store tuning.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// LockoutConfig controls failed-login lockout. The duration is fixed per
// lockout; repeated attempts while locked do not extend it.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// RateLimitConfig holds the dual fixed-window quotas enforced by the Gate.
type RateLimitConfig struct {
	PerMinute   int
	PerHour     int
	RedisPrefix string
}

// MFAConfig holds TOTP parameters.
type MFAConfig struct {
	Issuer          string
	Skew            uint
	BackupCodeCount int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	BufferSize int
}

// DefaultConfig returns the gateway defaults. The signing secret and
// encryption seed have no defaults and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Session: SessionConfig{
			TTL:         24 * time.Hour,
			RedisPrefix: "session",
		},
		Password: password.DefaultConfig(),
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			PerMinute:   100,
			PerHour:     1000,
			RedisPrefix: "ratelimit",
		},
		MFA: MFAConfig{
			Issuer:          "securepay",
			Skew:            1,
			BackupCodeCount: 10,
		},
		Audit: AuditConfig{
			BufferSize: 256,
		},
	}
}

func (c Config) validate() error {
	if len(c.SigningSecret) < 32 {
		return errors.New("signing secret must be at least 32 bytes")
	}
	if c.EncryptionSeed == "" {
		return errors.New("encryption seed is required")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.RateLimit.PerMinute <= 0 || c.RateLimit.PerHour <= 0 {
		return errors.New("rate limit quotas must be positive")
	}
	return nil
}
