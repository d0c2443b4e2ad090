package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/securepay/authcore/fieldcrypt"
	"github.com/securepay/authcore/mfa"
)

// SetupMFA provisions a TOTP secret and backup codes for an account. The
// secret stays inert until [Guard.ActivateMFA] confirms a valid code; a
// provisioned secret alone never grants protected access. The returned
// backup codes are the only plaintext copy that will ever exist.
func (g *Guard) SetupMFA(ctx context.Context, accountID, ip, correlationID string) (*MFASetup, error) {
	acct, err := g.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.MFA.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := g.mfa.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := g.mfa.ProvisioningURI(secret, acct.Identifier)
	if err != nil {
		return nil, err
	}

	codes, err := mfa.GenerateBackupCodes(g.backupCodeCount)
	if err != nil {
		return nil, err
	}

	encrypted := make([]string, 0, len(codes))
	for _, code := range codes {
		sealed, err := g.sealer.Encrypt(code)
		if err != nil {
			return nil, err
		}
		encrypted = append(encrypted, sealed)
	}

	err = g.provider.UpdateMFAState(ctx, acct.ID, MFAState{
		Enabled:     false,
		Secret:      secret,
		BackupCodes: encrypted,
	})
	if err != nil {
		return nil, err
	}

	g.auditSecurity(correlationID, acct.ID, true, "mfa_setup", ip, "")
	return &MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     codes,
	}, nil
}

// ActivateMFA completes the enrollment round-trip: a valid code against the
// provisioned secret flips the enabled flag.
func (g *Guard) ActivateMFA(ctx context.Context, accountID, code, ip, correlationID string) error {
	acct, err := g.account(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.MFA.Secret == "" {
		return ErrMFANotConfigured
	}
	if acct.MFA.Enabled {
		return ErrMFAAlreadyEnabled
	}

	if !g.mfa.VerifyCode(acct.MFA.Secret, code) {
		g.auditSecurity(correlationID, acct.ID, false, "mfa_enable", ip, "invalid mfa code")
		return ErrInvalidMFACode
	}

	acct.MFA.Enabled = true
	if err := g.provider.UpdateMFAState(ctx, acct.ID, acct.MFA); err != nil {
		return err
	}

	g.auditSecurity(correlationID, acct.ID, true, "mfa_enabled", ip, "")
	return nil
}

// DisableMFA clears the secret and backup codes.
func (g *Guard) DisableMFA(ctx context.Context, accountID, ip, correlationID string) error {
	acct, err := g.account(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.MFA.Enabled {
		return ErrMFANotConfigured
	}

	if err := g.provider.UpdateMFAState(ctx, acct.ID, MFAState{}); err != nil {
		return err
	}

	g.auditSecurity(correlationID, acct.ID, true, "mfa_disabled", ip, "")
	return nil
}

// consumeBackupCode matches code against the account's encrypted backup
// codes and removes the matched one. Codes are single-use.
func (g *Guard) consumeBackupCode(ctx context.Context, acct *Account, code string) error {
	candidate := strings.ToUpper(strings.TrimSpace(code))
	if candidate == "" || len(acct.MFA.BackupCodes) == 0 {
		return ErrInvalidBackupCode
	}

	matched := -1
	for i, sealed := range acct.MFA.BackupCodes {
		plain, err := g.sealer.Decrypt(sealed)
		if err != nil {
			if errors.Is(err, fieldcrypt.ErrDecryptionFailed) {
				// Corrupt entry; skip it rather than failing the attempt.
				g.log.Warn(ctx, "undecryptable backup code entry", "user_id", acct.ID)
				continue
			}
			return err
		}
		if subtle.ConstantTimeCompare([]byte(plain), []byte(candidate)) == 1 {
			matched = i
			break
		}
	}
	if matched < 0 {
		return ErrInvalidBackupCode
	}

	remaining := make([]string, 0, len(acct.MFA.BackupCodes)-1)
	remaining = append(remaining, acct.MFA.BackupCodes[:matched]...)
	remaining = append(remaining, acct.MFA.BackupCodes[matched+1:]...)
	acct.MFA.BackupCodes = remaining

	if err := g.provider.UpdateMFAState(ctx, acct.ID, acct.MFA); err != nil {
		return fmt.Errorf("%w: backup code consumption", ErrBackendUnavailable)
	}
	return nil
}

func (g *Guard) account(ctx context.Context, accountID string) (*Account, error) {
	acct, err := g.provider.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup", ErrBackendUnavailable)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}
