package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable indicates the backend could not be reached even after
// the single retry.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned by Update and Refresh when the target
// session does not exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

const (
	// idEntropyBytes is the entropy of opaque session identifiers.
	idEntropyBytes = 32

	defaultOpTimeout = 3 * time.Second
)

// Record is the compact session payload stored per identifier.
type Record struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a Redis-backed session store. Safe for concurrent use.
type Store struct {
	rdb        redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	opTimeout  time.Duration
}

// NewStore returns a Store writing keys under prefix with the given default
// TTL (24h when zero).
func NewStore(rdb redis.UniversalClient, prefix string, defaultTTL time.Duration) *Store {
	if prefix == "" {
		prefix = "session"
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Store{
		rdb:        rdb,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		opTimeout:  defaultOpTimeout,
	}
}

// NewID returns a fresh opaque session identifier with 32 bytes of entropy.
func NewID() (string, error) {
	raw := make([]byte, idEntropyBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Create stores rec under id with the given TTL (default TTL when zero).
func (s *Store) Create(ctx context.Context, id string, rec Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.retry(ctx, func(opCtx context.Context) error {
		return s.rdb.SetEx(opCtx, s.key(id), payload, ttl).Err()
	})
}

// Get loads the record for id. A missing or expired session yields
// (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var payload string

	err := s.retry(ctx, func(opCtx context.Context) error {
		var opErr error
		payload, opErr = s.rdb.Get(opCtx, s.key(id)).Result()
		return opErr
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &rec, nil
}

// Update replaces the record for id while preserving its remaining TTL.
// Callers that want a fresh TTL must call Refresh explicitly.
func (s *Store) Update(ctx context.Context, id string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.retry(ctx, func(opCtx context.Context) error {
		remaining, opErr := s.rdb.TTL(opCtx, s.key(id)).Result()
		if opErr != nil {
			return opErr
		}
		if remaining <= 0 {
			// -2 key missing, -1 no expiry (never set by this store).
			return ErrSessionNotFound
		}
		return s.rdb.SetEx(opCtx, s.key(id), payload, remaining).Err()
	})
}

// Delete removes the session. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.retry(ctx, func(opCtx context.Context) error {
		return s.rdb.Del(opCtx, s.key(id)).Err()
	})
}

// Refresh resets the TTL for id (default TTL when zero).
func (s *Store) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	return s.retry(ctx, func(opCtx context.Context) error {
		ok, opErr := s.rdb.Expire(opCtx, s.key(id), ttl).Result()
		if opErr != nil {
			return opErr
		}
		if !ok {
			return ErrSessionNotFound
		}
		return nil
	})
}

// retry runs op with a bounded timeout, retrying transient backend errors
// exactly once with no backoff. Sentinel outcomes (redis.Nil, not-found)
// pass through untouched.
func (s *Store) retry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		err = op(opCtx)
		cancel()

		if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, ErrSessionNotFound) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}
