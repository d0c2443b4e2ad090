package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the generic credential rejection. It is
	// deliberately indistinguishable across unknown-account and wrong-password
	// causes to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is in effect.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for inactive accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountExists is returned by Register for a taken identifier.
	ErrAccountExists = errors.New("account already exists")
	// ErrWeakPassword is returned by Register when the password fails the
	// strength policy.
	ErrWeakPassword = errors.New("password does not meet strength policy")
	// ErrMFARequired signals that a correct password was supplied but the
	// account requires a second factor.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFACode is returned for a wrong or replayed TOTP code.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrInvalidBackupCode is returned for an unknown or consumed backup code.
	ErrInvalidBackupCode = errors.New("invalid backup code")
	// ErrMFANotConfigured is returned when an MFA operation targets an
	// account without a provisioned secret.
	ErrMFANotConfigured = errors.New("mfa not configured")
	// ErrMFAAlreadyEnabled is returned by SetupMFA for an enrolled account.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrInvalidToken covers bad signature, malformed structure, wrong kind
	// and expiry, collapsed into one externally visible failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRateLimited is the base of all rate-limit rejections.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrBackendUnavailable is internal: components translate it into their
	// documented fail-open or fail-closed behavior before it reaches callers.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAccountNotFound is returned by account-scoped management operations
	// (MFA lifecycle); login paths never surface it.
	ErrAccountNotFound = errors.New("account not found")
)

// RateLimitError is returned by the Gate when a window is exhausted. It
// unwraps to ErrRateLimited and carries the retry-after hint.
type RateLimitError struct {
	Scope      string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s window, limit %d)", e.Scope, e.Limit)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
