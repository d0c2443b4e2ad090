// Package accountdb persists accounts in a relational store via GORM. It is
// the reference AccountProvider used by the gateway binary; deployments with
// an existing user store supply their own implementation instead.
package accountdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	authcore "github.com/securepay/authcore"
)

type accountModel struct {
	ID           string `gorm:"primaryKey"`
	Identifier   string `gorm:"uniqueIndex;not null"`
	Role         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Active       bool

	FailedAttempts int
	LastFailedAt   *time.Time
	LockedUntil    *time.Time

	MFAEnabled bool
	MFASecret  string
	// BackupCodes holds the encrypted codes as a JSON array.
	BackupCodes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (accountModel) TableName() string { return "accounts" }

// Store is a GORM-backed AccountProvider.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) a SQLite database at path. The special path
// ":memory:" yields an ephemeral store for tests and local runs.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open account database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing GORM handle and runs the schema migration.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&accountModel{}); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (*authcore.Account, error) {
	var m accountModel
	err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAccount(&m)
}

func (s *Store) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	var m accountModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAccount(&m)
}

func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	m, err := toModel(account)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) UpdateSecurityState(ctx context.Context, id string, state authcore.SecurityState) error {
	res := s.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", id).Updates(map[string]any{
		"failed_attempts": state.FailedAttempts,
		"last_failed_at":  state.LastFailedAt,
		"locked_until":    state.LockedUntil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) UpdateMFAState(ctx context.Context, id string, state authcore.MFAState) error {
	codes, err := encodeCodes(state.BackupCodes)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&accountModel{}).Where("id = ?", id).Updates(map[string]any{
		"mfa_enabled":  state.Enabled,
		"mfa_secret":   state.Secret,
		"backup_codes": codes,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func toAccount(m *accountModel) (*authcore.Account, error) {
	var codes []string
	if m.BackupCodes != "" {
		if err := json.Unmarshal([]byte(m.BackupCodes), &codes); err != nil {
			return nil, fmt.Errorf("decode backup codes: %w", err)
		}
	}
	return &authcore.Account{
		ID:           m.ID,
		Identifier:   m.Identifier,
		Role:         m.Role,
		PasswordHash: m.PasswordHash,
		Active:       m.Active,
		Security: authcore.SecurityState{
			FailedAttempts: m.FailedAttempts,
			LastFailedAt:   m.LastFailedAt,
			LockedUntil:    m.LockedUntil,
		},
		MFA: authcore.MFAState{
			Enabled:     m.MFAEnabled,
			Secret:      m.MFASecret,
			BackupCodes: codes,
		},
	}, nil
}

func toModel(a *authcore.Account) (*accountModel, error) {
	codes, err := encodeCodes(a.MFA.BackupCodes)
	if err != nil {
		return nil, err
	}
	return &accountModel{
		ID:             a.ID,
		Identifier:     a.Identifier,
		Role:           a.Role,
		PasswordHash:   a.PasswordHash,
		Active:         a.Active,
		FailedAttempts: a.Security.FailedAttempts,
		LastFailedAt:   a.Security.LastFailedAt,
		LockedUntil:    a.Security.LockedUntil,
		MFAEnabled:     a.MFA.Enabled,
		MFASecret:      a.MFA.Secret,
		BackupCodes:    codes,
	}, nil
}

func encodeCodes(codes []string) (string, error) {
	if len(codes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode backup codes: %w", err)
	}
	return string(data), nil
}
