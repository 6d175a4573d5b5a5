package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultLockTTL outlives a normal sweep; a crashed holder frees the lock
// when it expires.
const defaultLockTTL = 2 * time.Hour

// Lock coordinates exclusive cron runs across workers.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// extendableLock is a Lock whose lease can be pushed out while a sweep runs.
type extendableLock interface {
	Lock
	Extend(ctx context.Context) (bool, error)
	TTL() time.Duration
}

type lockStore interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) (bool, error)
	ExtendLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// RedisLock is a lease on a single key. Each Acquire mints a fresh owner
// token and only that token can extend or release the lease.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	owner string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.TryLock(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.owner = owner
		l.mu.Unlock()
	}
	return ok, nil
}

// Extend reports false once the lease has been lost to another owner.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	owner := l.currentOwner()
	if owner == "" {
		return false, nil
	}
	return l.store.ExtendLock(ctx, l.key, owner, l.ttl)
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	owner := l.owner
	l.owner = ""
	l.mu.Unlock()
	if owner == "" {
		return nil
	}
	if _, err := l.store.Unlock(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) currentOwner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// keepLease extends lock every third of its TTL until the returned stop
// func is called. Locks that cannot be extended are left alone.
func (s *Service) keepLease(ctx context.Context) (stop func()) {
	lock, ok := s.lock.(extendableLock)
	if !ok || lock.TTL() <= 0 {
		return func() {}
	}
	leaseCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(lock.TTL() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
				held, err := lock.Extend(leaseCtx)
				if err != nil {
					s.logg.Error(leaseCtx, "extend cron lock", err)
					continue
				}
				if !held {
					s.logg.Warn(leaseCtx, "cron lock lost before sweep finished")
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
