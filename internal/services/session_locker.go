package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/masteryloop-backend/internal/logger"
)

// SessionLocker serializes turns per learner. A turn mutates the whole
// snapshot, so two concurrent turns for one learner must never interleave.
type SessionLocker interface {
	Acquire(ctx context.Context, learnerID uuid.UUID) (release func(), err error)
}

// ErrLearnerBusy is returned when another turn holds the learner's lock.
var ErrLearnerBusy = fmt.Errorf("another turn is in progress for this learner")

const lockTTL = 30 * time.Second

// NewSessionLocker picks redis when REDIS_ADDR is set, otherwise an
// in-process mutex map. Single-instance deployments don't need redis.
func NewSessionLocker(log *logger.Logger) (SessionLocker, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Info("REDIS_ADDR unset; using in-process session locks")
		return newMemoryLocker(), nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLocker{
		rdb: rdb,
		log: log.With("service", "SessionLocker"),
	}, nil
}

type redisLocker struct {
	rdb *goredis.Client
	log *logger.Logger
}

// releaseScript deletes the lock only if this holder still owns it, so a
// slow turn that outlived its TTL cannot release someone else's lock.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLocker) Acquire(ctx context.Context, learnerID uuid.UUID) (func(), error) {
	key := "turnlock:" + learnerID.String()
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrLearnerBusy
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release turn lock", "learnerID", learnerID, "error", err)
		}
	}
	return release, nil
}

type memoryLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]bool
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: make(map[uuid.UUID]bool)}
}

func (l *memoryLocker) Acquire(_ context.Context, learnerID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[learnerID] {
		return nil, ErrLearnerBusy
	}
	l.locks[learnerID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, learnerID)
	}, nil
}
