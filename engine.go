package authsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hts/authsvc/internal/audit"
	"github.com/hts/authsvc/internal/limiters"
	"github.com/hts/authsvc/internal/workpool"
)

// Engine is the authentication and session state machine. It is safe for
// concurrent use once built.
type Engine struct {
	config   Config
	accounts AccountStore
	sessions SessionStore
	hasher   Hasher
	lockout  *limiters.LockoutPolicy
	dbPool   *workpool.Pool
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Close drains the audit buffer. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many login-history entries were discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() bool {
	return e != nil && e.accounts != nil && e.sessions != nil && e.hasher != nil
}

// Health pings Redis and, when the account store supports it, the database.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}

	var status HealthStatus
	if e.sessions != nil {
		latency, err := e.sessions.Ping(ctx)
		status.RedisAvailable = err == nil
		status.RedisLatency = latency
	}
	if pinger, ok := e.accounts.(Pinger); ok {
		start := time.Now()
		err := e.dbPool.Run(ctx, pinger.Ping)
		status.DatabaseAvailable = err == nil
		status.DatabaseLatency = time.Since(start)
	} else if e.accounts != nil {
		status.DatabaseAvailable = true
	}
	return status
}

/*
====================================
ACCOUNT STORE ACCESS
====================================
*/

// Every account store call goes through the bounded pool so a slow
// database cannot pile up unbounded goroutines on it.

func (e *Engine) findAccount(ctx context.Context, accountID int64) (*Account, error) {
	return workpool.Do(ctx, e.dbPool, func(ctx context.Context) (*Account, error) {
		return e.accounts.FindByID(ctx, accountID)
	})
}

func (e *Engine) incrementFailedAttempts(ctx context.Context, accountID int64, now time.Time) (int, error) {
	return workpool.Do(ctx, e.dbPool, func(ctx context.Context) (int, error) {
		return e.accounts.IncrementFailedAttempts(ctx, accountID, now)
	})
}

func (e *Engine) lockAccount(ctx context.Context, accountID int64, until time.Time) error {
	return e.dbPool.Run(ctx, func(ctx context.Context) error {
		return e.accounts.Lock(ctx, accountID, until)
	})
}

func (e *Engine) resetFailedAttempts(ctx context.Context, accountID int64) error {
	return e.dbPool.Run(ctx, func(ctx context.Context) error {
		return e.accounts.ResetFailedAttempts(ctx, accountID)
	})
}

func (e *Engine) createAccount(ctx context.Context, account Account) error {
	return e.dbPool.Run(ctx, func(ctx context.Context) error {
		return e.accounts.Create(ctx, account)
	})
}

func (e *Engine) deleteAccount(ctx context.Context, accountID int64) (bool, error) {
	return workpool.Do(ctx, e.dbPool, func(ctx context.Context) (bool, error) {
		return e.accounts.Delete(ctx, accountID)
	})
}

func (e *Engine) updateStatus(ctx context.Context, accountID int64, status AccountStatus) error {
	return e.dbPool.Run(ctx, func(ctx context.Context) error {
		return e.accounts.UpdateStatus(ctx, accountID, status)
	})
}

func (e *Engine) updateCredential(ctx context.Context, accountID int64, hash, salt string) error {
	return e.dbPool.Run(ctx, func(ctx context.Context) error {
		return e.accounts.UpdateCredential(ctx, accountID, hash, salt)
	})
}

// storeFailure classifies an account store error. Not-found passes through
// unchanged; everything else becomes ErrInternal and is counted.
func (e *Engine) storeFailure(err error) error {
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrAccountExists) {
		return err
	}
	e.metricInc(MetricAccountStoreError)
	return internalError(err)
}
