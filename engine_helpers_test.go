package authsvc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hts/authsvc"
	"github.com/hts/authsvc/accountstore/memstore"
	"github.com/hts/authsvc/password"
	"github.com/redis/go-redis/v9"
)

// plainHasher keeps engine tests fast; hashing cost is covered in package password.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, string, error) {
	if pw == "" {
		return "", "", password.ErrEmptyPassword
	}
	return "plain:" + pw, "", nil
}

func (plainHasher) Verify(pw, hash, _ string) (bool, error) {
	if !strings.HasPrefix(hash, "plain:") {
		return false, password.ErrUnknownFormat
	}
	return hash == "plain:"+pw, nil
}

func (plainHasher) NeedsUpgrade(string, string) bool { return false }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureSink struct {
	mu     sync.Mutex
	events []authsvc.AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event authsvc.AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *captureSink) Events() []authsvc.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authsvc.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) Reasons() []string {
	events := s.Events()
	out := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Outcome == authsvc.AuditOutcomeSuccess {
			out = append(out, "SUCCESS")
			continue
		}
		out = append(out, ev.Reason)
	}
	return out
}

type engineHarness struct {
	engine   *authsvc.Engine
	accounts *memstore.Store
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	sink     *captureSink
	clock    *fakeClock
}

type harnessOption func(*authsvc.Config, *authsvc.Builder)

func withConfig(fn func(*authsvc.Config)) harnessOption {
	return func(cfg *authsvc.Config, _ *authsvc.Builder) { fn(cfg) }
}

func withAccountStore(store authsvc.AccountStore) harnessOption {
	return func(_ *authsvc.Config, b *authsvc.Builder) { b.WithAccountStore(store) }
}

func withRealHasher() harnessOption {
	return func(_ *authsvc.Config, b *authsvc.Builder) { b.WithHasher(nil) }
}

func newEngineHarness(t *testing.T, opts ...harnessOption) *engineHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &engineHarness{
		accounts: memstore.New(),
		mr:       mr,
		rdb:      rdb,
		sink:     &captureSink{},
		clock:    newFakeClock(),
	}

	cfg := authsvc.DefaultConfig()
	cfg.Lifecycle.RetryBackoff = time.Millisecond
	// Minimum argon2id cost; only used by tests that opt into the real hasher.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Password.BcryptCost = 4

	b := authsvc.New().
		WithRedis(rdb).
		WithAccountStore(h.accounts).
		WithHasher(plainHasher{}).
		WithAuditSink(h.sink).
		WithClock(h.clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

// seed stores an ACTIVE account whose password is pw.
func (h *engineHarness) seed(t *testing.T, accountID int64, pw string) {
	t.Helper()
	hash, salt, _ := plainHasher{}.Hash(pw)
	err := h.accounts.Create(context.Background(), authsvc.Account{
		AccountID:      accountID,
		CredentialHash: hash,
		CredentialSalt: salt,
		Status:         authsvc.AccountActive,
	})
	if err != nil {
		t.Fatalf("seed account %d: %v", accountID, err)
	}
}

func (h *engineHarness) account(t *testing.T, accountID int64) *authsvc.Account {
	t.Helper()
	acct, err := h.accounts.FindByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("find account %d: %v", accountID, err)
	}
	return acct
}

// drainAudit closes the engine so every queued audit event is delivered.
func (h *engineHarness) drainAudit() []authsvc.AuditEvent {
	h.engine.Close()
	return h.sink.Events()
}

func login(h *engineHarness, accountID int64, pw string) (authsvc.LoginResult, error) {
	return h.engine.Login(context.Background(), authsvc.LoginRequest{
		AccountID: accountID,
		Password:  pw,
		IP:        "10.0.0.7",
		UserAgent: "authsvc-test",
	})
}

// flakyStore fails the first n calls of Create and Delete.
type flakyStore struct {
	*memstore.Store
	mu       sync.Mutex
	failures int
	calls    int
}

var errFlaky = errors.New("connection reset by peer")

func (s *flakyStore) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return true
	}
	return false
}

func (s *flakyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *flakyStore) Create(ctx context.Context, account authsvc.Account) error {
	if s.fail() {
		return errFlaky
	}
	return s.Store.Create(ctx, account)
}

func (s *flakyStore) Delete(ctx context.Context, accountID int64) (bool, error) {
	if s.fail() {
		return false, errFlaky
	}
	return s.Store.Delete(ctx, accountID)
}
