package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr string, db int, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Sessions persists per-session dialog state as JSON. Every Save refreshes the TTL.
type Sessions interface {
	Load(ctx context.Context, sessionID string, dest any) (bool, error)
	Save(ctx context.Context, sessionID string, value any) error
	Delete(ctx context.Context, sessionID string) error
}

// Tokens guards single-use batch tokens.
type Tokens interface {
	// Claim reports true for exactly one caller per token.
	Claim(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

type RedisSessions struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{redis: rdb, prefix: "storefront:session:", ttl: ttl}
}

func (s *RedisSessions) Load(ctx context.Context, sessionID string, dest any) (bool, error) {
	data, err := s.redis.Get(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return true, nil
}

func (s *RedisSessions) Save(ctx context.Context, sessionID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.prefix+sessionID, data, s.ttl).Err()
}

func (s *RedisSessions) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, s.prefix+sessionID).Err()
}

func (s *RedisSessions) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

type RedisTokens struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTokens(rdb *redis.Client, ttl time.Duration) *RedisTokens {
	return &RedisTokens{redis: rdb, prefix: "storefront:token:", ttl: ttl}
}

func (t *RedisTokens) Claim(ctx context.Context, token string) (bool, error) {
	return t.redis.SetNX(ctx, t.prefix+token, time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
}

func (t *RedisTokens) Release(ctx context.Context, token string) error {
	return t.redis.Del(ctx, t.prefix+token).Err()
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemorySessions is the in-process Sessions used in dev mode and tests.
type MemorySessions struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemorySessions(ttl time.Duration, now func() time.Time) *MemorySessions {
	if now == nil {
		now = time.Now
	}
	return &MemorySessions{data: make(map[string]memoryEntry), ttl: ttl, now: now}
}

func (s *MemorySessions) Load(_ context.Context, sessionID string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[sessionID]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && !s.now().Before(e.expires) {
		delete(s.data, sessionID)
		return false, nil
	}
	return true, json.Unmarshal(e.data, dest)
}

func (s *MemorySessions) Save(_ context.Context, sessionID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = memoryEntry{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessions) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// MemoryTokens is the in-process Tokens used in dev mode and tests.
type MemoryTokens struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{claimed: make(map[string]struct{})}
}

func (t *MemoryTokens) Claim(_ context.Context, token string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.claimed[token]; ok {
		return false, nil
	}
	t.claimed[token] = struct{}{}
	return true, nil
}

func (t *MemoryTokens) Release(_ context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.claimed, token)
	return nil
}
