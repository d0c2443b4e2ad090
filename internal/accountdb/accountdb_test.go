package accountdb

import (
	"context"
	"testing"
	"time"

	authcore "github.com/securepay/authcore"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func seed(t *testing.T, store *Store) *authcore.Account {
	t.Helper()
	acct := &authcore.Account{
		ID:           "acct-1",
		Identifier:   "user@example.com",
		Role:         "user",
		PasswordHash: "$argon2id$v=19$m=65536,t=2,p=2$salt$hash",
		Active:       true,
	}
	if err := store.Create(context.Background(), acct); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return acct
}

func TestCreateAndGet(t *testing.T) {
	store := newStore(t)
	acct := seed(t, store)
	ctx := context.Background()

	byIdent, err := store.GetByIdentifier(ctx, acct.Identifier)
	if err != nil {
		t.Fatalf("GetByIdentifier: %v", err)
	}
	if byIdent == nil || byIdent.ID != acct.ID || byIdent.PasswordHash != acct.PasswordHash {
		t.Fatalf("got %+v", byIdent)
	}

	byID, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID == nil || byID.Identifier != acct.Identifier {
		t.Fatalf("got %+v", byID)
	}
}

func TestUnknownAccountIsNilNotError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	acct, err := store.GetByIdentifier(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("GetByIdentifier: %v", err)
	}
	if acct != nil {
		t.Fatalf("got %+v, want nil", acct)
	}

	acct, err = store.GetByID(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if acct != nil {
		t.Fatalf("got %+v, want nil", acct)
	}
}

func TestDuplicateIdentifierRejected(t *testing.T) {
	store := newStore(t)
	acct := seed(t, store)

	dup := *acct
	dup.ID = "acct-2"
	if err := store.Create(context.Background(), &dup); err == nil {
		t.Fatal("expected unique index violation")
	}
}

func TestSecurityStateRoundTrip(t *testing.T) {
	store := newStore(t)
	acct := seed(t, store)
	ctx := context.Background()

	failedAt := time.Now().UTC().Truncate(time.Second)
	lockedUntil := failedAt.Add(30 * time.Minute)
	err := store.UpdateSecurityState(ctx, acct.ID, authcore.SecurityState{
		FailedAttempts: 5,
		LastFailedAt:   &failedAt,
		LockedUntil:    &lockedUntil,
	})
	if err != nil {
		t.Fatalf("UpdateSecurityState: %v", err)
	}

	got, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Security.FailedAttempts != 5 {
		t.Fatalf("FailedAttempts = %d, want 5", got.Security.FailedAttempts)
	}
	if got.Security.LockedUntil == nil || !got.Security.LockedUntil.Equal(lockedUntil) {
		t.Fatalf("LockedUntil = %v, want %v", got.Security.LockedUntil, lockedUntil)
	}

	// Clearing works through the same path.
	if err := store.UpdateSecurityState(ctx, acct.ID, authcore.SecurityState{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = store.GetByID(ctx, acct.ID)
	if got.Security.FailedAttempts != 0 || got.Security.LockedUntil != nil {
		t.Fatalf("security state not cleared: %+v", got.Security)
	}
}

func TestMFAStateRoundTrip(t *testing.T) {
	store := newStore(t)
	acct := seed(t, store)
	ctx := context.Background()

	state := authcore.MFAState{
		Enabled:     true,
		Secret:      "JBSWY3DPEHPK3PXP",
		BackupCodes: []string{"sealed-1", "sealed-2"},
	}
	if err := store.UpdateMFAState(ctx, acct.ID, state); err != nil {
		t.Fatalf("UpdateMFAState: %v", err)
	}

	got, err := store.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.MFA.Enabled || got.MFA.Secret != state.Secret {
		t.Fatalf("MFA = %+v", got.MFA)
	}
	if len(got.MFA.BackupCodes) != 2 || got.MFA.BackupCodes[0] != "sealed-1" {
		t.Fatalf("BackupCodes = %v", got.MFA.BackupCodes)
	}

	if err := store.UpdateMFAState(ctx, acct.ID, authcore.MFAState{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ = store.GetByID(ctx, acct.ID)
	if got.MFA.Enabled || got.MFA.Secret != "" || len(got.MFA.BackupCodes) != 0 {
		t.Fatalf("MFA state not cleared: %+v", got.MFA)
	}
}

func TestUpdateUnknownAccount(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.UpdateSecurityState(ctx, "ghost", authcore.SecurityState{}); err == nil {
		t.Fatal("expected error for unknown account")
	}
	if err := store.UpdateMFAState(ctx, "ghost", authcore.MFAState{}); err == nil {
		t.Fatal("expected error for unknown account")
	}
}
