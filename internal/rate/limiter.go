package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/securepay/authcore/internal/logging"
)

const defaultOpTimeout = 3 * time.Second

// Limiter counts requests per (identifier, window) pair.
type Limiter struct {
	rdb       redis.UniversalClient
	prefix    string
	opTimeout time.Duration
	log       logging.Logger
}

// New creates a Limiter writing counters under prefix.
func New(rdb redis.UniversalClient, prefix string, log logging.Logger) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &Limiter{
		rdb:       rdb,
		prefix:    prefix,
		opTimeout: defaultOpTimeout,
		log:       log,
	}
}

func (l *Limiter) key(identifier string, window time.Duration) string {
	return l.prefix + ":" + strconv.Itoa(int(window/time.Second)) + ":" + identifier
}

// IsAllowed admits or rejects one request for identifier under limit per
// window. At or above the limit it returns (false, 0) without incrementing,
// so counters never grow past the limit. On backend failure it fails open
// with (true, limit).
func (l *Limiter) IsAllowed(ctx context.Context, identifier string, limit int, window time.Duration) (bool, int) {
	allowed, remaining, err := l.tryConsume(ctx, identifier, limit, window)
	if err != nil {
		l.log.Warn(ctx, "rate limiter failing open", "identifier", identifier, "error", err.Error())
		return true, limit
	}
	return allowed, remaining
}

// Remaining reports how many requests identifier has left in the current
// window without consuming one. Backend failure reports the full limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string, limit int, window time.Duration) int {
	count, err := l.currentCount(ctx, identifier, window)
	if err != nil {
		l.log.Warn(ctx, "rate limiter read failed", "identifier", identifier, "error", err.Error())
		return limit
	}

	remaining := limit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Limiter) tryConsume(ctx context.Context, identifier string, limit int, window time.Duration) (bool, int, error) {
	var (
		allowed   bool
		remaining int
	)

	err := l.retry(ctx, func(opCtx context.Context) error {
		count, err := l.getCount(opCtx, identifier, window)
		if err != nil {
			return err
		}

		if count >= limit {
			allowed, remaining = false, 0
			return nil
		}

		pipe := l.rdb.Pipeline()
		pipe.Incr(opCtx, l.key(identifier, window))
		if count == 0 {
			// Expiry is set exactly once, at the first hit of the window.
			pipe.Expire(opCtx, l.key(identifier, window), window)
		}
		if _, err := pipe.Exec(opCtx); err != nil {
			return err
		}

		allowed, remaining = true, limit-count-1
		return nil
	})

	return allowed, remaining, err
}

func (l *Limiter) currentCount(ctx context.Context, identifier string, window time.Duration) (int, error) {
	var count int
	err := l.retry(ctx, func(opCtx context.Context) error {
		var opErr error
		count, opErr = l.getCount(opCtx, identifier, window)
		return opErr
	})
	return count, err
}

func (l *Limiter) getCount(ctx context.Context, identifier string, window time.Duration) (int, error) {
	value, err := l.rdb.Get(ctx, l.key(identifier, window)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	if value < 0 {
		return 0, nil
	}
	return int(value), nil
}

// retry runs op with a bounded timeout and a single retry, no backoff.
func (l *Limiter) retry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
		err = op(opCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("redis unavailable: %w", err)
}
