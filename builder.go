package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/securepay/authcore/fieldcrypt"
	internalaudit "github.com/securepay/authcore/internal/audit"
	"github.com/securepay/authcore/internal/logging"
	"github.com/securepay/authcore/internal/rate"
	"github.com/securepay/authcore/mfa"
	"github.com/securepay/authcore/password"
	"github.com/securepay/authcore/session"
	"github.com/securepay/authcore/token"
)

// Builder wires the core. Construction is allocation-only; no I/O happens
// until the built Guard and Gate are used.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	provider AccountProvider
	sink     AuditSink
	log      logging.Logger

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.provider = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithLogger(log logging.Logger) *Builder {
	b.log = log
	return b
}

// Core is the assembled authentication core. Close releases the audit
// dispatcher after draining buffered events.
type Core struct {
	guard      *Guard
	gate       *Gate
	sessions   *session.Store
	tokens     *token.Manager
	sealer     *fieldcrypt.Sealer
	dispatcher *internalaudit.Dispatcher
}

func (c *Core) Guard() *Guard            { return c.guard }
func (c *Core) Gate() *Gate              { return c.gate }
func (c *Core) Sessions() *session.Store { return c.sessions }
func (c *Core) Tokens() *token.Manager   { return c.tokens }
func (c *Core) Sealer() *fieldcrypt.Sealer { return c.sealer }

func (c *Core) Close() {
	c.dispatcher.Close()
}

// Build validates the configuration and assembles the Guard and Gate.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.provider == nil {
		return nil, errors.New("account provider is required")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = logging.Nop{}
	}
	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}
	sealer, err := fieldcrypt.New(b.config.EncryptionSeed)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(token.Config{
		Secret:     b.config.SigningSecret,
		AccessTTL:  b.config.Token.AccessTTL,
		RefreshTTL: b.config.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	mfaSvc := mfa.New(mfa.Config{
		Issuer: b.config.MFA.Issuer,
		Skew:   b.config.MFA.Skew,
	})
	sessions := session.NewStore(b.redis, b.config.Session.RedisPrefix, b.config.Session.TTL)
	limiter := rate.New(b.redis, b.config.RateLimit.RedisPrefix, log)
	dispatcher := internalaudit.NewDispatcher(b.config.Audit.BufferSize, sinkAdapter{sink: sink})

	guard := &Guard{
		provider:        b.provider,
		hasher:          hasher,
		mfa:             mfaSvc,
		sealer:          sealer,
		tokens:          tokens,
		sessions:        sessions,
		lockout:         b.config.Lockout,
		accessTTL:       b.config.Token.AccessTTL,
		backupCodeCount: b.config.MFA.BackupCodeCount,
		dispatcher:      dispatcher,
		log:             log,
		now:             time.Now,
	}

	throttle := []Stage{
		&rateStage{limiter: limiter, scope: "minute", limit: b.config.RateLimit.PerMinute, window: time.Minute},
		&rateStage{limiter: limiter, scope: "hour", limit: b.config.RateLimit.PerHour, window: time.Hour},
	}
	auth := []Stage{
		&bearerStage{tokens: tokens},
	}
	gate := NewGate(throttle, auth, dispatcher, log)

	b.built = true
	return &Core{
		guard:      guard,
		gate:       gate,
		sessions:   sessions,
		tokens:     tokens,
		sealer:     sealer,
		dispatcher: dispatcher,
	}, nil
}
