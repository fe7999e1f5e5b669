package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hts/authsvc/internal"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every failure that comes from talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when a session id has no live record.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionCorrupt is returned when a record exists but cannot be parsed.
var ErrSessionCorrupt = errors.New("session record corrupt")

// ErrIDCollision is returned when repeated id generation keeps hitting live records.
var ErrIDCollision = errors.New("session id collision")

const (
	// DefaultKeyPrefix namespaces session records.
	DefaultKeyPrefix = "session:"
	// DefaultIndexPrefix namespaces per-account session index sets.
	DefaultIndexPrefix = "acct_sessions:"

	maxCreateAttempts = 3
	minTTL            = time.Second
)

const (
	fieldAccountID = "account_id"
	fieldCreatedAt = "created_at"
	fieldIP        = "ip"
	fieldUserAgent = "user_agent"
)

// KEYS[1] session record, KEYS[2] account index.
// ARGV: session id, account id, ttl seconds, created_at, ip, user agent, record prefix.
const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
local ttl = tonumber(ARGV[3])
redis.call("HSET", KEYS[1], "account_id", ARGV[2], "created_at", ARGV[4], "ip", ARGV[5], "user_agent", ARGV[6])
redis.call("EXPIRE", KEYS[1], ttl)
local members = redis.call("SMEMBERS", KEYS[2])
for _, sid in ipairs(members) do
  if redis.call("EXISTS", ARGV[7] .. sid) == 0 then
    redis.call("SREM", KEYS[2], sid)
  end
end
redis.call("SADD", KEYS[2], ARGV[1])
if redis.call("TTL", KEYS[2]) < ttl then
  redis.call("EXPIRE", KEYS[2], ttl)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

// KEYS[1] session record. ARGV: session id, ttl seconds, index prefix.
// Only TTLs move; index membership is left as Create wrote it.
const getAndRefreshScript = `
local account = redis.call("HGET", KEYS[1], "account_id")
if not account then
  return false
end
local ttl = tonumber(ARGV[2])
redis.call("EXPIRE", KEYS[1], ttl)
local index_key = ARGV[3] .. account
if redis.call("TTL", index_key) < ttl then
  redis.call("EXPIRE", index_key, ttl)
end
return account
`

var getAndRefreshLua = redis.NewScript(getAndRefreshScript)

// KEYS[1] session record, KEYS[2] caller-supplied account index.
// ARGV: session id, caller account id, index prefix.
const deleteSessionScript = `
local owner = redis.call("HGET", KEYS[1], "account_id")
local removed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if owner and owner ~= ARGV[2] then
  redis.call("SREM", ARGV[3] .. owner, ARGV[1])
end
return removed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS[1] account index. ARGV: record prefix.
const deleteAllSessionsScript = `
local members = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, sid in ipairs(members) do
  removed = removed + redis.call("DEL", ARGV[1] .. sid)
end
redis.call("DEL", KEYS[1])
return removed
`

var deleteAllSessionsLua = redis.NewScript(deleteAllSessionsScript)

// Config controls key layout and per-call timeouts for a [Store].
type Config struct {
	KeyPrefix   string
	IndexPrefix string
	// OpTimeout bounds every individual Redis round trip. Zero means the
	// caller's context is used unchanged.
	OpTimeout time.Duration
}

// Store is a Redis-backed session store that keeps session records and the
// per-account session index consistent through server-side scripts.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	indexPrefix string
	opTimeout   time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// Empty prefixes fall back to [DefaultKeyPrefix] and [DefaultIndexPrefix].
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.IndexPrefix == "" {
		cfg.IndexPrefix = DefaultIndexPrefix
	}
	return &Store{
		redis:       client,
		prefix:      cfg.KeyPrefix,
		indexPrefix: cfg.IndexPrefix,
		opTimeout:   cfg.OpTimeout,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey(accountID int64) string {
	return s.indexPrefix + strconv.FormatInt(accountID, 10)
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl < minTTL {
		ttl = minTTL
	}
	return int64(ttl / time.Second)
}

// Create stores a new session for accountID and returns its generated id.
// The record and the index membership are written in one script, and dead
// members of the account index are pruned in the same step.
func (s *Store) Create(ctx context.Context, accountID int64, ttl time.Duration, meta Meta) (string, error) {
	indexKey := s.indexKey(accountID)
	now := time.Now().Unix()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		sid, err := internal.NewSessionID()
		if err != nil {
			return "", fmt.Errorf("generate session id: %w", err)
		}
		id := sid.String()

		callCtx, cancel := s.opContext(ctx)
		created, err := createSessionLua.Run(
			callCtx,
			s.redis,
			[]string{s.key(id), indexKey},
			id,
			accountID,
			ttlSeconds(ttl),
			now,
			meta.IP,
			meta.UserAgent,
			s.prefix,
		).Int64()
		cancel()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if created == 1 {
			return id, nil
		}
	}

	return "", ErrIDCollision
}

// GetAndRefresh resolves a session to its owning account and extends the
// record and index expiry to ttl. Absent or expired sessions return
// [ErrSessionNotFound]; transport failures return [ErrRedisUnavailable].
func (s *Store) GetAndRefresh(ctx context.Context, sessionID string, ttl time.Duration) (int64, error) {
	if sessionID == "" {
		return 0, ErrSessionNotFound
	}

	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	raw, err := getAndRefreshLua.Run(
		callCtx,
		s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		ttlSeconds(ttl),
		s.indexPrefix,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("%w: %w", ErrSessionNotFound, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return accountID, nil
}

// Lookup returns the stored record without touching its expiry.
func (s *Store) Lookup(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	fields, err := s.redis.HGetAll(callCtx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	return parseRecord(sessionID, fields)
}

func parseRecord(sessionID string, fields map[string]string) (*Record, error) {
	accountID, err := strconv.ParseInt(fields[fieldAccountID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: account_id: %v", ErrSessionCorrupt, err)
	}
	var createdAt int64
	if v := fields[fieldCreatedAt]; v != "" {
		createdAt, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrSessionCorrupt, err)
		}
	}
	return &Record{
		SessionID: sessionID,
		AccountID: accountID,
		CreatedAt: createdAt,
		IP:        fields[fieldIP],
		UserAgent: fields[fieldUserAgent],
	}, nil
}

// Delete removes one session and its index membership. Deleting a session
// that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string, accountID int64) error {
	if sessionID == "" {
		return nil
	}

	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	err := deleteSessionLua.Run(
		callCtx,
		s.redis,
		[]string{s.key(sessionID), s.indexKey(accountID)},
		sessionID,
		strconv.FormatInt(accountID, 10),
		s.indexPrefix,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForAccount removes every session listed in the account index and
// the index itself, returning how many live records were deleted.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID int64) (int, error) {
	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	removed, err := deleteAllSessionsLua.Run(
		callCtx,
		s.redis,
		[]string{s.indexKey(accountID)},
		s.prefix,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(removed), nil
}

// ActiveSessionIDs lists the account's sessions whose records are still live.
// Stale index members are skipped, not removed.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID int64) ([]string, error) {
	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	members, err := s.redis.SMembers(callCtx, s.indexKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(members))
	for i, sid := range members {
		existsCmds[i] = pipe.Exists(callCtx, s.key(sid))
	}
	if _, err := pipe.Exec(callCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(members))
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			live = append(live, members[i])
		}
	}
	return live, nil
}

// ActiveSessionCount returns the number of live sessions for an account.
func (s *Store) ActiveSessionCount(ctx context.Context, accountID int64) (int, error) {
	ids, err := s.ActiveSessionIDs(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Ping measures one Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	callCtx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	if err := s.redis.Ping(callCtx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
