package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dialogState struct {
	Step string `json:"step"`
	Name string `json:"name"`
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestRedisSessions_SaveLoad(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newTestRedis(t)
	s := NewRedisSessions(rdb, time.Hour)

	require.NoError(t, s.Save(ctx, "s1", dialogState{Step: "phone", Name: "Ivan Petrenko"}))

	var got dialogState
	ok, err := s.Load(ctx, "s1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "phone", got.Step)

	ok, err = s.Load(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "s1"))
	ok, _ = s.Load(ctx, "s1", &got)
	assert.False(t, ok)
}

func TestRedisSessions_IdleExpiry(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	s := NewRedisSessions(rdb, 2*time.Hour)

	require.NoError(t, s.Save(ctx, "s1", dialogState{Step: "city"}))
	mr.FastForward(time.Hour)
	require.NoError(t, s.Save(ctx, "s1", dialogState{Step: "carrier"}))
	mr.FastForward(90 * time.Minute)

	var got dialogState
	ok, err := s.Load(ctx, "s1", &got)
	require.NoError(t, err)
	assert.True(t, ok, "save refreshes the idle TTL")

	mr.FastForward(time.Hour)
	ok, err = s.Load(ctx, "s1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSessions_HealthCheck(t *testing.T) {
	rdb, mr := newTestRedis(t)
	s := NewRedisSessions(rdb, time.Hour)
	assert.NoError(t, s.HealthCheck(context.Background()))
	mr.Close()
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestRedisTokens_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newTestRedis(t)
	tokens := NewRedisTokens(rdb, time.Hour)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tokens.Claim(ctx, "tok-1")
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)

	require.NoError(t, tokens.Release(ctx, "tok-1"))
	ok, err := tokens.Claim(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemorySessions_TTL(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewMemorySessions(time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "s1", dialogState{Step: "name"}))
	var got dialogState
	ok, err := s.Load(ctx, "s1", &got)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Hour)
	ok, _ = s.Load(ctx, "s1", &got)
	assert.False(t, ok)
}

func TestMemoryTokens(t *testing.T) {
	ctx := context.Background()
	tokens := NewMemoryTokens()
	ok, _ := tokens.Claim(ctx, "a")
	assert.True(t, ok)
	ok, _ = tokens.Claim(ctx, "a")
	assert.False(t, ok)
	_ = tokens.Release(ctx, "a")
	ok, _ = tokens.Claim(ctx, "a")
	assert.True(t, ok)
}
