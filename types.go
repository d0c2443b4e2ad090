package authcore

import (
	"context"
	"time"
)

// GuardState is the login state machine position reported in results.
type GuardState uint8

const (
	StateUnauthenticated GuardState = iota
	StateCredentialChecked
	StateMFAPending
	StateAuthenticated
	StateLocked
)

func (s GuardState) String() string {
	switch s {
	case StateCredentialChecked:
		return "credential_checked"
	case StateMFAPending:
		return "mfa_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateLocked:
		return "locked"
	default:
		return "unauthenticated"
	}
}

// SecurityState is the mutable per-account failure record. If LockedUntil
// is set and in the future, every credential login is rejected regardless
// of password correctness. The counter resets to zero only on success.
type SecurityState struct {
	FailedAttempts int
	LastFailedAt   *time.Time
	LockedUntil    *time.Time
}

// MFAState holds an account's second-factor material. The secret is inert
// until Enabled is flipped by a successful verification round-trip. Backup
// codes are stored encrypted; plaintext exists only at generation time.
type MFAState struct {
	Enabled     bool
	Secret      string
	BackupCodes []string
}

// Account is the slice of the account record this core reads and writes.
type Account struct {
	ID           string
	Identifier   string
	Role         string
	PasswordHash string
	Active       bool
	Security     SecurityState
	MFA          MFAState
}

// AccountProvider is the persistence collaborator. Implementations return
// (nil, nil) for unknown identifiers; the guard translates absence into the
// generic credential rejection. The core only touches the fields above and
// never issues arbitrary queries.
type AccountProvider interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdateSecurityState(ctx context.Context, id string, state SecurityState) error
	UpdateMFAState(ctx context.Context, id string, state MFAState) error
}

// TokenPair is the bearer material returned on successful authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginInput carries one login attempt.
type LoginInput struct {
	Identifier    string
	Password      string
	MFACode       string
	BackupCode    string
	IP            string
	CorrelationID string
}

// RefreshInput carries one token refresh request. IP and CorrelationID tie
// the resulting audit events back to the originating request.
type RefreshInput struct {
	RefreshToken  string
	IP            string
	CorrelationID string
}

// RegisterInput carries one registration request.
type RegisterInput struct {
	Identifier    string
	Password      string
	Role          string
	IP            string
	CorrelationID string
}

// LoginResult is the success-side variant of a login or registration.
// MFARequired marks the MFA_PENDING state: the password was correct but no
// usable tokens are issued until a code is presented.
type LoginResult struct {
	State       GuardState
	MFARequired bool
	Tokens      *TokenPair
	SessionID   string
	AccountID   string
	Role        string
}

// MFASetup is returned once per enrollment. BackupCodes appear in plaintext
// here and nowhere else; only their encrypted form is persisted.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Identity is the authenticated context attached to a request by the Gate.
type Identity struct {
	UserID        string
	Role          string
	CorrelationID string
}
