package authsvc

import (
	"errors"
	"time"

	"github.com/hts/authsvc/internal/limiters"
	"github.com/hts/authsvc/password"
	"github.com/hts/authsvc/session"
)

// Config is the complete engine configuration. Obtain one from
// [DefaultConfig] and override fields before passing it to the builder.
type Config struct {
	Session   SessionConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Database  DatabaseConfig
	Lifecycle LifecycleConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// TTL is applied on create and re-applied on every successful validation.
	TTL         time.Duration
	RedisPrefix string
	IndexPrefix string
	// OpTimeout bounds a single Redis round trip.
	OpTimeout time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for new hashes. Existing bcrypt
// and legacy digests are still verified, and are rehashed on a successful
// login when UpgradeOnLogin is set.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	BcryptCost       int
	UpgradeOnLogin   bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	Workers     int
	DropIfFull  bool
	EmitTimeout time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DATABASE CONFIG
====================================
*/

// DatabaseConfig bounds account store access. At most MaxConcurrency calls
// are in flight; each one, including the wait for a slot, is capped by
// StoreTimeout.
type DatabaseConfig struct {
	MaxConcurrency int
	StoreTimeout   time.Duration
}

/*
====================================
LIFECYCLE CONFIG
====================================
*/

type LifecycleConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultConfig returns the production defaults: 30 minute sessions, lock
// after 5 failures for 30 minutes, 3 attempts per lifecycle event.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			TTL:         30 * time.Minute,
			RedisPrefix: session.DefaultKeyPrefix,
			IndexPrefix: session.DefaultIndexPrefix,
			OpTimeout:   2 * time.Second,
		},
		Lockout: LockoutConfig{
			Threshold: limiters.DefaultLockoutThreshold,
			Duration:  limiters.DefaultLockoutDuration,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			BcryptCost:       12,
			UpgradeOnLogin:   true,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			Workers:     4,
			DropIfFull:  true,
			EmitTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Database: DatabaseConfig{
			MaxConcurrency: 32,
			StoreTimeout:   3 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			MaxAttempts:  3,
			RetryBackoff: 100 * time.Millisecond,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.TTL < time.Second {
		return errors.New("session TTL must be at least one second")
	}
	if c.Session.RedisPrefix == "" || c.Session.IndexPrefix == "" {
		return errors.New("session redis prefixes must be set")
	}
	if c.Session.RedisPrefix == c.Session.IndexPrefix {
		return errors.New("session record and index prefixes must differ")
	}
	if c.Session.OpTimeout < 0 {
		return errors.New("session op timeout must not be negative")
	}

	if c.Lockout.Threshold < 1 {
		return errors.New("lockout threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be > 0")
	}

	if c.Password.BcryptCost != 0 && (c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31) {
		return errors.New("bcrypt cost must be between 4 and 31")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("max password bytes must not be negative")
	}

	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("audit buffer size must be > 0 when audit is enabled")
		}
		if c.Audit.Workers <= 0 {
			return errors.New("audit workers must be > 0 when audit is enabled")
		}
		// A blocking emit would stall Login behind a slow sink.
		if !c.Audit.DropIfFull {
			return errors.New("audit drop-if-full must be enabled; login never waits on the audit sink")
		}
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("latency histograms require metrics to be enabled")
	}

	if c.Database.MaxConcurrency <= 0 {
		return errors.New("database max concurrency must be > 0")
	}
	if c.Database.StoreTimeout <= 0 {
		return errors.New("database store timeout must be > 0")
	}

	if c.Lifecycle.MaxAttempts < 1 {
		return errors.New("lifecycle max attempts must be >= 1")
	}
	if c.Lifecycle.RetryBackoff < 0 {
		return errors.New("lifecycle retry backoff must not be negative")
	}

	return nil
}

func (c Config) argon2Config() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MaxPasswordBytes: c.Password.MaxPasswordBytes,
	}
}
