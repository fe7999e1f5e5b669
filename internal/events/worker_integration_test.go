package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hts/authsvc"
	"github.com/hts/authsvc/accountstore/memstore"
	"github.com/redis/go-redis/v9"
)

func newTestEngine(t *testing.T) (*authsvc.Engine, *memstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authsvc.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Audit.Enabled = false
	cfg.Lifecycle.RetryBackoff = time.Millisecond

	accounts := memstore.New()
	engine, err := authsvc.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithLogger(quietLogger()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, accounts
}

func TestWorkerDrivesEngineLifecycle(t *testing.T) {
	engine, accounts := newTestEngine(t)
	ctx := context.Background()

	created := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(42, "secret")},
		// Redelivery must be a no-op.
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(42, "other")},
	}}}
	w := NewWorker(quietLogger(), created, engine, Topics{}, time.Millisecond)
	if _, err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if s := w.Stats(); s.Handled != 2 || s.Failed != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}

	res, err := engine.Login(ctx, authsvc.LoginRequest{AccountID: 42, Password: "secret"})
	if err != nil {
		t.Fatalf("login after create: %v", err)
	}
	if res.AccountID != 42 || res.SessionID == "" {
		t.Fatalf("unexpected login result %+v", res)
	}

	deleted := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultDeletedTopic, Payload: EncodeAccountDeleted(42)},
	}}}
	w = NewWorker(quietLogger(), deleted, engine, Topics{}, time.Millisecond)
	if _, err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce: %v", err)
	}

	if accounts.Len() != 0 {
		t.Fatalf("expected account removed, %d remain", accounts.Len())
	}
	v, err := engine.ValidateSession(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Valid {
		t.Fatal("session must not survive account deletion")
	}
}

func TestWorkerShutdownKeepsUnappliedEvents(t *testing.T) {
	engine, accounts := newTestEngine(t)

	consumer := &fakeConsumer{batches: [][]Message{{
		{Topic: DefaultCreatedTopic, Payload: EncodeAccountCreated(7, "secret")},
	}}}
	w := NewWorker(quietLogger(), consumer, engine, Topics{}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.processOnce(ctx); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if consumer.Committed() != 0 {
		t.Fatalf("unapplied event was committed")
	}
	if s := w.Stats(); s.Failed != 0 {
		t.Fatalf("shutdown must not count as failure: %+v", s)
	}
	if accounts.Len() != 0 {
		t.Fatalf("expected no account, got %d", accounts.Len())
	}
	if got := engine.MetricsSnapshot().Counters[authsvc.MetricLifecycleDropped]; got != 0 {
		t.Fatalf("expected no dropped events, got %d", got)
	}
}
