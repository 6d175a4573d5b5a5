package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketsettle/pkg/config"
)

// memoryStore emulates the commands and the two lock scripts in memory.
type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	evals  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// EvalSha reports NOSCRIPT so Script.Run falls back to Eval, like a cold server.
func (m *memoryStore) EvalSha(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT No matching script"))
}

func (m *memoryStore) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	key, owner := keys[0], fmt.Sprint(args[0])
	if m.values[key] != owner {
		return redis.NewCmdResult(int64(0), nil)
	}
	sum := sha1.Sum([]byte(script))
	switch hex.EncodeToString(sum[:]) {
	case unlockScript.Hash():
		delete(m.values, key)
	case extendScript.Hash():
		ms, _ := args[1].(int64)
		m.ttls[key] = time.Duration(ms) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (m *memoryStore) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *memoryStore) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *memoryStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *memoryStore) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestLockIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	client := &Client{store: store}
	key := client.LockKey("cron-worker")

	ok, err := client.TryLock(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.TryLock(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = client.ExtendLock(ctx, key, "owner-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, store.ttls[key])

	ok, err = client.ExtendLock(ctx, key, "owner-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Hour, store.ttls[key])

	ok, err = client.Unlock(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "owner-a", store.values[key])

	ok, err = client.Unlock(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, store.values, key)
	assert.Equal(t, 4, store.evals)
}

func TestLockKey(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "ms:lock:courier-sync", client.LockKey("courier-sync"))
	assert.Equal(t, "ms:lock", client.LockKey(" "))
}

func TestUninitialisedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	require.Error(t, client.Ping(ctx))
	_, err := client.TryLock(ctx, "k", "o", time.Second)
	require.Error(t, err)
	_, err = client.Unlock(ctx, "k", "o")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6380", DB: 2, ReadTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
}
