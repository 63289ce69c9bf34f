// Package runlock keeps two loader processes from writing the same graph at
// once. Concurrent loaders would race to MERGE the same shared nodes and
// deadlock; the lock makes the single-writer assumption explicit.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/learnergraph-backend/internal/platform/envutil"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// ErrHeld is returned by Acquire when another loader holds the lock.
var ErrHeld = errors.New("runlock: lock held by another loader")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Lock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
	log   *logger.Logger
}

// NewFromEnv builds a lock from REDIS_ADDR. Returns (nil, nil) when the
// variable is unset; callers treat a nil lock as "locking disabled".
func NewFromEnv(log *logger.Logger) (*Lock, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envutil.Int("REDIS_DB", 0),
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("runlock: ping redis: %w", err)
	}
	return &Lock{
		rdb:   rdb,
		key:   envutil.Str("RUN_LOCK_KEY", "learnergraph:loader:lock"),
		token: uuid.NewString(),
		ttl:   envutil.Duration("RUN_LOCK_TTL", 30*time.Minute),
		log:   log.With("component", "RunLock"),
	}, nil
}

// Acquire takes the lock with SET NX. Returns ErrHeld when it is already
// taken. The TTL bounds how long a crashed loader can block the next run.
func (l *Lock) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("runlock: acquire: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	l.log.Info("run lock acquired", "key", l.key, "ttl", l.ttl.String())
	return nil
}

// Release deletes the lock only if this process still owns it.
func (l *Lock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.log.Warn("run lock release failed", "key", l.key, "error", err)
	}
	if err := l.rdb.Close(); err != nil {
		l.log.Warn("redis close failed", "error", err)
	}
}
