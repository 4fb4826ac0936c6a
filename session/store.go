package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport failure from the store.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a record, token or projection is absent.
var ErrNotFound = errors.New("session data not found")

// RefreshCheck is the outcome of comparing a presented refresh token against Redis.
type RefreshCheck uint8

const (
	RefreshValid RefreshCheck = iota
	RefreshNoActiveSession
	RefreshSessionMismatch
	RefreshTokenMismatch
)

// establishScript replaces whatever session the account had with a new one.
// KEYS: active, new record, refresh, csrf, projection.
// ARGV: sid, record blob, refresh token, csrf token, session ttl ms, csrf ttl ms, record key prefix.
const establishScript = `
local prev = redis.call("GET", KEYS[1])
if prev and prev ~= ARGV[1] then
  redis.call("DEL", ARGV[7] .. prev)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[5])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[5])
redis.call("SET", KEYS[3], ARGV[3], "PX", ARGV[5])
redis.call("SET", KEYS[4], ARGV[4], "PX", ARGV[6])
redis.call("DEL", KEYS[5])
if prev then
  return prev
end
return ""
`

var establishLua = redis.NewScript(establishScript)

// revokeScript drops every key of the account and the record of its live session.
// KEYS: active, refresh, csrf, projection. ARGV: record key prefix.
const revokeScript = `
local sid = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1], KEYS[2], KEYS[3], KEYS[4])
if sid then
  redis.call("DEL", ARGV[1] .. sid)
  return sid
end
return ""
`

var revokeLua = redis.NewScript(revokeScript)

// logoutScript always removes the caller's record; the account keys go only
// when the caller still owns the Active Session (or nobody does).
// KEYS: active, refresh, csrf, projection, record. ARGV: sid.
const logoutScript = `
redis.call("DEL", KEYS[5])
local cur = redis.call("GET", KEYS[1])
if (not cur) or cur == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2], KEYS[3], KEYS[4])
  return 1
end
return 0
`

var logoutLua = redis.NewScript(logoutScript)

// touchScript rewrites the trailing lastActivity bytes and renews the TTL.
// KEYS: record. ARGV: 8-byte lastActivity, ttl ms.
const touchScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if #data < 9 then
  return -1
end
redis.call("SET", KEYS[1], string.sub(data, 1, #data - 8) .. ARGV[1], "PX", ARGV[2])
return 1
`

var touchLua = redis.NewScript(touchScript)

// Store is safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	config Config
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	return &Store{
		redis:  redisClient,
		config: cfg.withDefaults(),
	}
}

func (s *Store) activeKey(accountID string) string {
	return s.config.Prefix + "active_session:" + accountID
}

func (s *Store) recordPrefix() string {
	return s.config.Prefix + "session:"
}

func (s *Store) recordKey(sessionID string) string {
	return s.recordPrefix() + sessionID
}

func (s *Store) refreshKey(accountID string) string {
	return s.config.Prefix + "refresh:" + accountID
}

func (s *Store) csrfKey(accountID string) string {
	return s.config.Prefix + "csrf:" + accountID
}

func (s *Store) projectionKey(accountID string) string {
	return s.config.Prefix + "user:" + accountID
}

// SessionTTL is the lifetime of the Active Session, record and refresh token.
func (s *Store) SessionTTL() time.Duration { return s.config.SessionTTL }

// CSRFTTL is the lifetime of a CSRF token.
func (s *Store) CSRFTTL() time.Duration { return s.config.CSRFTTL }

// Establish makes rec the account's only session and stores its refresh and
// CSRF tokens. It returns the session id it replaced, or "".
func (s *Store) Establish(ctx context.Context, rec *Record, refreshToken, csrfToken string) (string, error) {
	if rec == nil || rec.SessionID == "" {
		return "", errors.New("session id required")
	}
	blob, err := Encode(rec)
	if err != nil {
		return "", err
	}

	keys := []string{
		s.activeKey(rec.AccountID),
		s.recordKey(rec.SessionID),
		s.refreshKey(rec.AccountID),
		s.csrfKey(rec.AccountID),
		s.projectionKey(rec.AccountID),
	}
	prev, err := establishLua.Run(ctx, s.redis, keys,
		rec.SessionID,
		blob,
		refreshToken,
		csrfToken,
		s.config.SessionTTL.Milliseconds(),
		s.config.CSRFTTL.Milliseconds(),
		s.recordPrefix(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return prev, nil
}

// ActiveSessionID returns the account's live session id or ErrNotFound.
func (s *Store) ActiveSessionID(ctx context.Context, accountID string) (string, error) {
	sid, err := s.redis.Get(ctx, s.activeKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// CheckRefresh compares sid and token against one consistent snapshot of the
// Active Session and stored refresh token.
func (s *Store) CheckRefresh(ctx context.Context, accountID, sid, token string) (RefreshCheck, error) {
	values, err := s.redis.MGet(ctx, s.activeKey(accountID), s.refreshKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	active, _ := values[0].(string)
	stored, _ := values[1].(string)
	switch {
	case active == "":
		return RefreshNoActiveSession, nil
	case active != sid:
		return RefreshSessionMismatch, nil
	case stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1:
		return RefreshTokenMismatch, nil
	}
	return RefreshValid, nil
}

// Touch sets the record's lastActivity to now and renews its TTL. A missing
// record yields ErrNotFound.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time) error {
	res, err := touchLua.Run(ctx, s.redis, []string{s.recordKey(sessionID)},
		encodeLastActivity(now.Unix()),
		s.config.SessionTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch res {
	case 0:
		return ErrNotFound
	case -1:
		return ErrRecordCorrupt
	}
	return nil
}

// GetRecord loads the Session Record for sessionID.
func (s *Store) GetRecord(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID
	return rec, nil
}

// Revoke removes every session key of the account. It returns the revoked
// session id, or "" when there was none. Safe to repeat.
func (s *Store) Revoke(ctx context.Context, accountID string) (string, error) {
	keys := []string{
		s.activeKey(accountID),
		s.refreshKey(accountID),
		s.csrfKey(accountID),
		s.projectionKey(accountID),
	}
	sid, err := revokeLua.Run(ctx, s.redis, keys, s.recordPrefix()).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return sid, nil
}

// Logout ends sessionID. It reports whether the account-level keys were
// removed, which happens only when sessionID was still the live session.
func (s *Store) Logout(ctx context.Context, accountID, sessionID string) (bool, error) {
	keys := []string{
		s.activeKey(accountID),
		s.refreshKey(accountID),
		s.csrfKey(accountID),
		s.projectionKey(accountID),
		s.recordKey(sessionID),
	}
	res, err := logoutLua.Run(ctx, s.redis, keys, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

// SetCSRF overwrites the account's CSRF token with a fresh TTL.
func (s *Store) SetCSRF(ctx context.Context, accountID, token string) error {
	if err := s.redis.Set(ctx, s.csrfKey(accountID), token, s.config.CSRFTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetCSRF returns the stored CSRF token or ErrNotFound.
func (s *Store) GetCSRF(ctx context.Context, accountID string) (string, error) {
	token, err := s.redis.Get(ctx, s.csrfKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return token, nil
}

// GetProjection returns the cached projection or ErrNotFound.
func (s *Store) GetProjection(ctx context.Context, accountID string) (*Projection, error) {
	data, err := s.redis.Get(ctx, s.projectionKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var p Projection
	if err := json.Unmarshal(data, &p); err != nil {
		// a bad cache entry is a miss
		_ = s.redis.Del(ctx, s.projectionKey(accountID)).Err()
		return nil, ErrNotFound
	}
	return &p, nil
}

// SetProjection caches p for the configured projection TTL.
func (s *Store) SetProjection(ctx context.Context, p *Projection) error {
	if p == nil || p.ID == "" {
		return errors.New("projection id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.projectionKey(p.ID), data, s.config.ProjectionTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteProjection drops the cached projection so the next read repopulates it.
func (s *Store) DeleteProjection(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.projectionKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// String renders a RefreshCheck for logs.
func (c RefreshCheck) String() string {
	switch c {
	case RefreshValid:
		return "valid"
	case RefreshNoActiveSession:
		return "no_active_session"
	case RefreshSessionMismatch:
		return "session_mismatch"
	case RefreshTokenMismatch:
		return "token_mismatch"
	}
	return "unknown(" + strconv.Itoa(int(c)) + ")"
}
