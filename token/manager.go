// Package token issues and validates the signed, self-contained access and
// refresh tokens carried by bearer credentials.
//
// Access and refresh tokens are structurally identical except for the kind
// claim and the unique id present on refresh tokens. Callers must check the
// kind explicitly: a refresh token authorizes exactly one operation, minting
// a new access token, and must never pass resource authorization.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates access from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalidToken covers bad signature, malformed structure, wrong
// algorithm, and expiry. The causes are deliberately collapsed into one
// externally visible failure so callers cannot learn which check failed.
var ErrInvalidToken = errors.New("invalid token")

const minSecretBytes = 32

// Claims is the tagged claim set embedded in every token: required identity
// fields plus an open extension map for forward compatibility.
type Claims struct {
	Role  string            `json:"role,omitempty"`
	Kind  Kind              `json:"type"`
	Extra map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Config holds the process-wide signing secret and TTLs. Rotating the secret
// invalidates all outstanding tokens; there is no key versioning.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Manager signs and parses tokens with HS256. Immutable after construction.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// IssueAccess signs an access token for subject with the given role and
// optional extension claims.
func (m *Manager) IssueAccess(subject, role string, extra map[string]string) (string, error) {
	return m.sign(Claims{
		Role:  role,
		Kind:  KindAccess,
		Extra: extra,
	}, subject, m.config.AccessTTL)
}

// IssueRefresh signs a refresh token for subject. Every refresh token
// carries a fresh unique id.
func (m *Manager) IssueRefresh(subject string) (string, error) {
	claims := Claims{Kind: KindRefresh}
	claims.ID = uuid.NewString()
	return m.sign(claims, subject, m.config.RefreshTTL)
}

func (m *Manager) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := m.now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Decode parses and validates a token. Expiry is checked unconditionally:
// a token without an expiry claim is rejected regardless of its signature.
func (m *Manager) Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// CheckKind reports whether the decoded claims carry the expected kind.
func CheckKind(claims *Claims, expected Kind) bool {
	return claims != nil && claims.Kind == expected
}
