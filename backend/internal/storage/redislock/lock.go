// Package redislock holds the cross-instance sweep lock.
package redislock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blogmedia/blogmedia/backend/internal/service"
	"github.com/blogmedia/blogmedia/shared/config"
	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLockKey = "blog-media:sweep-lock"

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock makes sure a single instance sweeps at a time. The TTL bounds how
// long a crashed holder can block others.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

var _ service.SweepLock = (*SweepLock)(nil)

func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Public.Redis.Addr,
		Password: cfg.RedisPassword(),
		DB:       cfg.Public.Redis.DB,
	})
}

func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SweepLock{client: client, key: key, ttl: ttl}
}

// Acquire returns false without error when another holder owns the lock.
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		logger.Log.Debug("sweep lock held elsewhere", "component", "reaper", "key", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

// Release drops the lock if this instance still owns it.
func (l *SweepLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	if deleted == 0 {
		logger.Log.Warn("sweep lock expired before release", "component", "reaper", "key", l.key, "ttl", l.ttl)
	}
	return nil
}
