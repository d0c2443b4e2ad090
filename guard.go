package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securepay/authcore/fieldcrypt"
	internalaudit "github.com/securepay/authcore/internal/audit"
	"github.com/securepay/authcore/internal/logging"
	"github.com/securepay/authcore/mfa"
	"github.com/securepay/authcore/password"
	"github.com/securepay/authcore/session"
	"github.com/securepay/authcore/token"
)

// Guard orchestrates credential checks, MFA, and the per-account failure
// counter into login decisions. One audit event is emitted per state
// transition. Safe for concurrent use; concurrent attempts against the same
// account may race on the counter, which is accepted (bounded under-count,
// never enough to defeat lockout under a single-threaded attack).
type Guard struct {
	provider AccountProvider
	hasher   *password.Hasher
	mfa      *mfa.Service
	sealer   *fieldcrypt.Sealer
	tokens   *token.Manager
	sessions *session.Store

	lockout         LockoutConfig
	accessTTL       time.Duration
	backupCodeCount int

	dispatcher *internalaudit.Dispatcher
	log        logging.Logger
	now        func() time.Time
}

// Login evaluates one credential login attempt. Transition order is fixed:
// lockout check first (the password is not evaluated for a locked account),
// then password, then MFA. MFA failures never touch the password failure
// counter.
func (g *Guard) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	acct, err := g.provider.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		g.log.Error(ctx, "account lookup failed", "error", err.Error())
		return nil, fmt.Errorf("%w: account lookup", ErrBackendUnavailable)
	}
	if acct == nil {
		g.audit(in.CorrelationID, "", false, "login", in.IP, "unknown account")
		return nil, ErrInvalidCredentials
	}

	if locked, _ := g.isLocked(acct); locked {
		g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "account locked")
		return nil, ErrAccountLocked
	}

	ok, err := g.hasher.Verify(in.Password, acct.PasswordHash)
	if err != nil {
		g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "unverifiable credential")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, g.recordFailure(ctx, acct, in)
	}

	if !acct.Active {
		g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "account disabled")
		return nil, ErrAccountDisabled
	}

	method := "login"
	if acct.MFA.Enabled {
		switch {
		case in.BackupCode != "":
			if err := g.consumeBackupCode(ctx, acct, in.BackupCode); err != nil {
				reason := "invalid backup code"
				if errors.Is(err, ErrBackendUnavailable) {
					reason = "backup code store unavailable"
				}
				g.audit(in.CorrelationID, acct.ID, false, "login_backup_code", in.IP, reason)
				return nil, err
			}
			method = "login_backup_code"
		case in.MFACode == "":
			g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "mfa required")
			return &LoginResult{
				State:       StateMFAPending,
				MFARequired: true,
				AccountID:   acct.ID,
			}, nil
		default:
			if !g.mfa.VerifyCode(acct.MFA.Secret, in.MFACode) {
				// Tracked independently of the password counter.
				g.audit(in.CorrelationID, acct.ID, false, "login_mfa", in.IP, "invalid mfa code")
				return nil, ErrInvalidMFACode
			}
			method = "login_mfa"
		}
	}

	if err := g.clearFailures(ctx, acct); err != nil {
		g.log.Warn(ctx, "failure counter reset failed", "user_id", acct.ID, "error", err.Error())
	}

	result, err := g.establish(ctx, acct)
	if err != nil {
		g.audit(in.CorrelationID, acct.ID, false, method, in.IP, "session backend unavailable")
		return nil, err
	}

	g.audit(in.CorrelationID, acct.ID, true, method, in.IP, "")
	return result, nil
}

// Register creates an account after enforcing the strength policy, then
// authenticates it exactly as a successful login would.
func (g *Guard) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	assessment := password.AssessStrength(in.Password)
	if !assessment.Valid {
		g.audit(in.CorrelationID, "", false, "registration", in.IP, "weak password")
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(assessment.Issues, "; "))
	}

	existing, err := g.provider.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup", ErrBackendUnavailable)
	}
	if existing != nil {
		g.audit(in.CorrelationID, "", false, "registration", in.IP, "identifier already registered")
		return nil, ErrAccountExists
	}

	hash, err := g.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = "user"
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Identifier:   in.Identifier,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := g.provider.Create(ctx, acct); err != nil {
		return nil, err
	}

	result, err := g.establish(ctx, acct)
	if err != nil {
		g.audit(in.CorrelationID, acct.ID, false, "registration", in.IP, "session backend unavailable")
		return nil, err
	}

	g.audit(in.CorrelationID, acct.ID, true, "registration", in.IP, "")
	return result, nil
}

// Refresh mints a new access token from a refresh token. Refresh tokens
// authorize exactly this operation; access tokens are rejected here.
func (g *Guard) Refresh(ctx context.Context, in RefreshInput) (*TokenPair, error) {
	claims, err := g.tokens.Decode(in.RefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.CheckKind(claims, token.KindRefresh) {
		g.audit(in.CorrelationID, claims.Subject, false, "refresh", in.IP, "wrong token kind")
		return nil, ErrInvalidToken
	}

	acct, err := g.provider.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup", ErrBackendUnavailable)
	}
	if acct == nil {
		return nil, ErrInvalidToken
	}
	if !acct.Active {
		g.audit(in.CorrelationID, acct.ID, false, "refresh", in.IP, "account disabled")
		return nil, ErrAccountDisabled
	}
	if locked, _ := g.isLocked(acct); locked {
		g.audit(in.CorrelationID, acct.ID, false, "refresh", in.IP, "account locked")
		return nil, ErrAccountLocked
	}

	access, err := g.tokens.IssueAccess(acct.ID, acct.Role, map[string]string{"email": acct.Identifier})
	if err != nil {
		return nil, err
	}

	g.audit(in.CorrelationID, acct.ID, true, "refresh", in.IP, "")
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: in.RefreshToken,
		ExpiresIn:    int(g.accessTTL.Seconds()),
	}, nil
}

// Logout deletes the session. Deleting an absent session succeeds.
func (g *Guard) Logout(ctx context.Context, userID, sessionID, ip, correlationID string) error {
	if sessionID != "" {
		if err := g.sessions.Delete(ctx, sessionID); err != nil {
			g.log.Warn(ctx, "session delete failed", "user_id", userID, "error", err.Error())
			return err
		}
	}

	g.audit(correlationID, userID, true, "logout", ip, "")
	return nil
}

// isLocked reports whether the account is inside its lockout window.
func (g *Guard) isLocked(acct *Account) (bool, time.Time) {
	until := acct.Security.LockedUntil
	if until == nil || !g.now().Before(*until) {
		return false, time.Time{}
	}
	return true, *until
}

// recordFailure applies the failed-attempt transition: increment, lock at
// the threshold, persist. The read-then-write against the account record is
// intentionally unguarded; see the concurrency note on Guard.
func (g *Guard) recordFailure(ctx context.Context, acct *Account, in LoginInput) error {
	now := g.now()
	state := acct.Security
	state.FailedAttempts++
	state.LastFailedAt = &now

	crossed := state.FailedAttempts >= g.lockout.Threshold
	if crossed {
		lockedUntil := now.Add(g.lockout.Duration)
		state.LockedUntil = &lockedUntil
	}

	if err := g.provider.UpdateSecurityState(ctx, acct.ID, state); err != nil {
		g.log.Error(ctx, "security state persist failed", "user_id", acct.ID, "error", err.Error())
	}

	if crossed {
		g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "lockout threshold reached")
		return ErrAccountLocked
	}

	g.audit(in.CorrelationID, acct.ID, false, "login", in.IP, "invalid password")
	return ErrInvalidCredentials
}

func (g *Guard) clearFailures(ctx context.Context, acct *Account) error {
	if acct.Security.FailedAttempts == 0 && acct.Security.LockedUntil == nil && acct.Security.LastFailedAt == nil {
		return nil
	}
	acct.Security = SecurityState{}
	return g.provider.UpdateSecurityState(ctx, acct.ID, acct.Security)
}

// establish issues the token pair and creates the session for an account
// that has fully authenticated.
func (g *Guard) establish(ctx context.Context, acct *Account) (*LoginResult, error) {
	access, err := g.tokens.IssueAccess(acct.ID, acct.Role, map[string]string{"email": acct.Identifier})
	if err != nil {
		return nil, err
	}
	refresh, err := g.tokens.IssueRefresh(acct.ID)
	if err != nil {
		return nil, err
	}

	sessionID, err := session.NewID()
	if err != nil {
		return nil, err
	}
	err = g.sessions.Create(ctx, sessionID, session.Record{
		UserID:    acct.ID,
		Role:      acct.Role,
		CreatedAt: g.now().UTC(),
	}, 0)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		State:     StateAuthenticated,
		Tokens:    &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(g.accessTTL.Seconds())},
		SessionID: sessionID,
		AccountID: acct.ID,
		Role:      acct.Role,
	}, nil
}

func (g *Guard) audit(correlationID, userID string, success bool, method, ip, reason string) {
	g.dispatcher.Emit(internalaudit.Event{
		Timestamp:     g.now().UTC(),
		EventType:     "authentication",
		UserID:        userID,
		Success:       success,
		Method:        method,
		IPAddress:     ip,
		Reason:        reason,
		CorrelationID: correlationID,
	})
}

func (g *Guard) auditSecurity(correlationID, userID string, success bool, method, ip, reason string) {
	g.dispatcher.Emit(internalaudit.Event{
		Timestamp:     g.now().UTC(),
		EventType:     "security",
		UserID:        userID,
		Success:       success,
		Method:        method,
		IPAddress:     ip,
		Reason:        reason,
		CorrelationID: correlationID,
	})
}
