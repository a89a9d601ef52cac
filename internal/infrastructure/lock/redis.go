package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock serializes runs across api and worker processes.
type RedisLock struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedisLock(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "health-ai:run:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLock{client: client, prefix: prefix, logger: logger}, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context, recordID string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + recordID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("run_lock_release_failed", "record_id", recordID, "error", err)
		}
	}
	return release, true, nil
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}
