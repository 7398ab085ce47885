package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/darkking4096/odonto/pkg/logging"
)

// releaseScript deletes the lock only when the stored token still matches,
// so an expired lock reissued to another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes turns per client across process instances with a
// SET NX token lock. The TTL bounds how long a crashed holder can block a
// client's conversation.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *logging.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Acquire blocks until the client's lock is held or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, clientID string) (func(), error) {
	key := "turnlock:" + clientID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("store: acquiring turn lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("store: waiting for turn lock: %w", ctx.Err())
		case <-time.After(l.retry):
		}
	}

	release := func() {
		// Release uses a fresh context: the turn's ctx may already be
		// canceled by the time the deferred release runs.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release turn lock",
				"client_id", clientID,
				"error", err.Error(),
			)
		}
	}
	return release, nil
}
