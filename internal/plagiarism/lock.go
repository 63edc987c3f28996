package plagiarism

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockKeyPrefix = "dupcheck:scan_lock:"

// Locker guards the scan of one problem across processes. Acquire fails
// with apperr.ErrScanInProgress when another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, problemID int64) (release func(), err error)
}

// KeyedMutex serialises work per key inside one process. Waiters give up
// when their context ends.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*keyedLock)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key int64) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.drop(key, l)
		})
	}, nil
}

func (m *KeyedMutex) drop(key int64, l *keyedLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock: SET NX PX with a random
// token, released by compare-and-delete.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, problemID int64) (func(), error) {
	key := lockKeyPrefix + strconv.FormatInt(problemID, 10)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	if !ok {
		return nil, apperr.ErrScanInProgress
	}

	return func() {
		// The scan context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Int64("problemId", problemID).Msg("Failed to release scan lock")
		}
	}, nil
}
