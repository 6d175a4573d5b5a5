// Package redis wraps go-redis with the key layout and the owner-scoped locks
// the settlement workers coordinate through.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/logger"
)

const keyNamespace = "ms"

var errNotInitialized = errors.New("redis client not initialized")

// unlockScript deletes KEYS[1] only when it still holds ARGV[1].
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL of KEYS[1] to ARGV[2] ms only when it still
// holds ARGV[1].
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type cmdable interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
}

type Client struct {
	store cmdable
	raw   *redis.Client
}

// New connects with the configured pool and timeouts and pings once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig prefers URL. Pool and timeout settings fill whatever the
// URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

// LockKey namespaces a lock name, e.g. "ms:lock:cron-worker".
func (c *Client) LockKey(name string) string {
	return joinKey("lock", name)
}

// TryLock stores owner at key when the key is absent.
func (c *Client) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, owner, ttl).Result()
}

// Unlock deletes key if owner still holds it and reports whether it did.
func (c *Client) Unlock(ctx context.Context, key, owner string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := unlockScript.Run(ctx, c.store, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", key, err)
	}
	return n == 1, nil
}

// ExtendLock resets the expiry of key to ttl if owner still holds it.
func (c *Client) ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := extendScript.Run(ctx, c.store, []string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func joinKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
