package authsvc

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hts/authsvc/internal/audit"
	"github.com/hts/authsvc/internal/limiters"
	"github.com/hts/authsvc/internal/workpool"
	"github.com/hts/authsvc/password"
	"github.com/hts/authsvc/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. It is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessions  SessionStore
	accounts  AccountStore
	hasher    Hasher
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used for the default [session.Store]. It is
// ignored when WithSessionStore is also called.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithSessionStore(store SessionStore) *Builder {
	b.sessions = store
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithHasher replaces the default argon2id/bcrypt/legacy chain.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for lockout decisions and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. An account store
// and either a session store or a redis client are required.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}

	sessions := b.sessions
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or session store is required")
		}
		sessions = session.NewStore(b.redis, session.Config{
			KeyPrefix:   b.config.Session.RedisPrefix,
			IndexPrefix: b.config.Session.IndexPrefix,
			OpTimeout:   b.config.Session.OpTimeout,
		})
	}

	hasher := b.hasher
	if hasher == nil {
		primary, err := password.NewArgon2(b.config.argon2Config())
		if err != nil {
			return nil, fmt.Errorf("password config: %w", err)
		}
		hasher = password.NewChain(primary, b.config.Password.BcryptCost)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	b.built = true

	return &Engine{
		config:   b.config,
		accounts: b.accounts,
		sessions: sessions,
		hasher:   hasher,
		lockout: limiters.NewLockoutPolicy(limiters.LockoutConfig{
			Threshold: b.config.Lockout.Threshold,
			Duration:  b.config.Lockout.Duration,
		}),
		dbPool: workpool.New(b.config.Database.MaxConcurrency, b.config.Database.StoreTimeout),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:     b.config.Audit.Enabled,
			BufferSize:  b.config.Audit.BufferSize,
			Workers:     b.config.Audit.Workers,
			DropIfFull:  b.config.Audit.DropIfFull,
			EmitTimeout: b.config.Audit.EmitTimeout,
		}, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
		logger:  logger,
		now:     clock,
	}, nil
}
