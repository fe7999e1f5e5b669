package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testTTL = 1800 * time.Second

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, Config{OpTimeout: time.Second})
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestCreateWritesRecordAndIndex(t *testing.T) {
	store, mr, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{IP: "10.0.0.1", UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sid == "" {
		t.Fatal("expected non-empty session id")
	}

	if got := mr.HGet("session:"+sid, "account_id"); got != "42" {
		t.Fatalf("expected account_id 42, got %q", got)
	}
	if ttl := mr.TTL("session:" + sid); ttl != testTTL {
		t.Fatalf("expected record ttl %v, got %v", testTTL, ttl)
	}
	ok, err := rdb.SIsMember(ctx, "acct_sessions:42", sid).Result()
	if err != nil {
		t.Fatalf("sismember: %v", err)
	}
	if !ok {
		t.Fatal("expected session id in account index")
	}
	if ttl := mr.TTL("acct_sessions:42"); ttl < testTTL {
		t.Fatalf("expected index ttl >= %v, got %v", testTTL, ttl)
	}

	rec, err := store.Lookup(ctx, sid)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.AccountID != 42 || rec.IP != "10.0.0.1" || rec.UserAgent != "curl/8" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		sid, err := store.Create(ctx, 7, testTTL, Meta{})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if _, dup := seen[sid]; dup {
			t.Fatalf("duplicate session id %q", sid)
		}
		seen[sid] = struct{}{}
	}

	count, err := store.ActiveSessionCount(ctx, 7)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 50 {
		t.Fatalf("expected 50 active sessions, got %d", count)
	}
}

func TestGetAndRefreshExtendsTTL(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(20 * time.Minute)

	accountID, err := store.GetAndRefresh(ctx, sid, testTTL)
	if err != nil {
		t.Fatalf("get and refresh: %v", err)
	}
	if accountID != 42 {
		t.Fatalf("expected account 42, got %d", accountID)
	}
	if ttl := mr.TTL("session:" + sid); ttl != testTTL {
		t.Fatalf("expected refreshed ttl %v, got %v", testTTL, ttl)
	}

	// 20 more minutes would have expired the original record.
	mr.FastForward(20 * time.Minute)
	if _, err := store.GetAndRefresh(ctx, sid, testTTL); err != nil {
		t.Fatalf("expected refreshed session to survive, got %v", err)
	}
}

func TestGetAndRefreshLeavesIndexMembership(t *testing.T) {
	store, mr, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := rdb.SRem(ctx, "acct_sessions:42", sid).Err(); err != nil {
		t.Fatalf("srem: %v", err)
	}

	mr.FastForward(10 * time.Minute)
	if _, err := store.GetAndRefresh(ctx, sid, testTTL); err != nil {
		t.Fatalf("get and refresh: %v", err)
	}

	members, err := rdb.SMembers(ctx, "acct_sessions:42").Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 || members[0] != other {
		t.Fatalf("expected index [%s], got %v", other, members)
	}
	if ttl := mr.TTL("acct_sessions:42"); ttl != testTTL {
		t.Fatalf("expected index ttl refreshed to %v, got %v", testTTL, ttl)
	}
}

func TestGetAndRefreshExpiredSession(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mr.FastForward(testTTL + time.Second)

	_, err = store.GetAndRefresh(ctx, sid, testTTL)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("not-found must not be reported as unavailable: %v", err)
	}
}

func TestGetAndRefreshUnknownAndEmpty(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.GetAndRefresh(ctx, "nope", testTTL); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}
	if _, err := store.GetAndRefresh(ctx, "", testTTL); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty id, got %v", err)
	}
}

func TestGetAndRefreshCorruptRecord(t *testing.T) {
	store, _, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := rdb.HSet(ctx, "session:bad", "account_id", "not-a-number").Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.GetAndRefresh(ctx, "bad", testTTL); !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("expected ErrSessionCorrupt, got %v", err)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	store, _, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, sid, 42); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sid, 42); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	if _, err := store.GetAndRefresh(ctx, sid, testTTL); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	members, err := rdb.SMembers(ctx, "acct_sessions:42").Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty index, got %v", members)
	}
}

func TestDeleteWithWrongAccountCleansOwnerIndex(t *testing.T) {
	store, _, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sid, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Delete(ctx, sid, 99); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ok, err := rdb.SIsMember(ctx, "acct_sessions:42", sid).Result()
	if err != nil {
		t.Fatalf("sismember: %v", err)
	}
	if ok {
		t.Fatal("expected owner index to drop the deleted session")
	}
}

func TestDeleteAllForAccount(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("sessions=%d", n), func(t *testing.T) {
			store, mr, _, done := newSessionStoreTest(t)
			defer done()
			ctx := context.Background()

			ids := make([]string, 0, n)
			for i := 0; i < n; i++ {
				sid, err := store.Create(ctx, 42, testTTL, Meta{})
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				ids = append(ids, sid)
			}
			other, err := store.Create(ctx, 43, testTTL, Meta{})
			if err != nil {
				t.Fatalf("create other: %v", err)
			}

			removed, err := store.DeleteAllForAccount(ctx, 42)
			if err != nil {
				t.Fatalf("delete all: %v", err)
			}
			if removed != n {
				t.Fatalf("expected %d removed, got %d", n, removed)
			}
			if mr.Exists("acct_sessions:42") {
				t.Fatal("expected account index to be deleted")
			}
			for _, sid := range ids {
				if mr.Exists("session:" + sid) {
					t.Fatalf("expected session %s deleted", sid)
				}
			}
			if _, err := store.GetAndRefresh(ctx, other, testTTL); err != nil {
				t.Fatalf("expected other account session untouched, got %v", err)
			}
		})
	}
}

func TestDeleteAllCountsOnlyLiveRecords(t *testing.T) {
	store, mr, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if _, err := store.Create(ctx, 42, 10*time.Second, Meta{}); err != nil {
		t.Fatalf("create short: %v", err)
	}
	if _, err := store.Create(ctx, 42, testTTL, Meta{}); err != nil {
		t.Fatalf("create long: %v", err)
	}
	mr.FastForward(time.Minute)

	removed, err := store.DeleteAllForAccount(ctx, 42)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 live session removed, got %d", removed)
	}
}

func TestCreatePrunesDeadIndexMembers(t *testing.T) {
	store, mr, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	long, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create long: %v", err)
	}
	stale, err := store.Create(ctx, 42, 10*time.Second, Meta{})
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}
	mr.FastForward(time.Minute)

	fresh, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	members, err := rdb.SMembers(ctx, "acct_sessions:42").Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 index members, got %v", members)
	}
	for _, m := range members {
		if m == stale {
			t.Fatalf("expected stale member %s to be pruned", stale)
		}
		if m != long && m != fresh {
			t.Fatalf("unexpected index member %s", m)
		}
	}
}

func TestActiveSessionIDsSkipsExpired(t *testing.T) {
	store, mr, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	live, err := store.Create(ctx, 42, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := rdb.SAdd(ctx, "acct_sessions:42", "ghost").Err(); err != nil {
		t.Fatalf("seed ghost: %v", err)
	}
	mr.FastForward(time.Second)

	ids, err := store.ActiveSessionIDs(ctx, 42)
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != live {
		t.Fatalf("expected [%s], got %v", live, ids)
	}
}

func TestCustomPrefixes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewStore(rdb, Config{KeyPrefix: "t:s:", IndexPrefix: "t:a:"})
	sid, err := store.Create(context.Background(), 5, testTTL, Meta{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("t:s:"+sid) || !mr.Exists("t:a:5") {
		t.Fatalf("expected custom prefixed keys, got %v", mr.Keys())
	}
}

func TestStoreReportsRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewStore(rdb, Config{OpTimeout: time.Second})
	ctx := context.Background()

	mr.Close()

	if _, err := store.Create(ctx, 42, testTTL, Meta{}); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("create: expected ErrRedisUnavailable, got %v", err)
	}
	_, err = store.GetAndRefresh(ctx, "sid", testTTL)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("get: expected ErrRedisUnavailable, got %v", err)
	}
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unavailable must not be reported as not found: %v", err)
	}
	if err := store.Delete(ctx, "sid", 42); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("delete: expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.DeleteAllForAccount(ctx, 42); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("delete all: expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("ping: expected ErrRedisUnavailable, got %v", err)
	}
}
