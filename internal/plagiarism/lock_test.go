package plagiarism

import (
	"context"
	"testing"
	"time"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/infra/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, 1)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := m.Lock(ctx, 1)
		if err == nil {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never acquired the key")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock1, err := m.Lock(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	unlock2, err := m.Lock(ctx, 2)
	require.NoError(t, err)
	unlock2()
}

func TestKeyedMutexWaiterGivesUp(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutexReleaseIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), 1)
	require.NoError(t, err)

	unlock()
	unlock()

	unlock, err = m.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()
	assert.Empty(t, m.locks)
}

// compareAndDelete mirrors releaseScript.
func compareAndDelete(s *redistest.Store, keys []string, args []string) (interface{}, error) {
	if v, ok := s.GetLocked(keys[0]); ok && v == args[0] {
		s.DelLocked(keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *redistest.Store) {
	t.Helper()
	client, store := redistest.NewClient()
	t.Cleanup(func() { _ = client.Close() })
	store.RegisterScript(releaseScript.Hash(), compareAndDelete)
	return NewRedisLocker(client, ttl), store
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker, store := newTestLocker(t, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)

	token, ok := store.Get("dupcheck:scan_lock:7")
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.InDelta(t, time.Minute.Seconds(), store.TTL("dupcheck:scan_lock:7").Seconds(), 1)

	_, err = locker.Acquire(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrScanInProgress)

	other, err := locker.Acquire(ctx, 8)
	require.NoError(t, err)
	other()

	release()
	_, ok = store.Get("dupcheck:scan_lock:7")
	assert.False(t, ok)

	release, err = locker.Acquire(ctx, 7)
	require.NoError(t, err)
	release()
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, store := newTestLocker(t, time.Minute)

	release, err := locker.Acquire(context.Background(), 7)
	require.NoError(t, err)

	// The lock expired and another worker took it.
	store.Set("dupcheck:scan_lock:7", "someone-else")
	release()

	token, ok := store.Get("dupcheck:scan_lock:7")
	require.True(t, ok)
	assert.Equal(t, "someone-else", token)
}

func TestRedisLockerExpiredLockCanBeRetaken(t *testing.T) {
	locker, store := newTestLocker(t, time.Minute)
	now := time.Now()
	store.Now = func() time.Time { return now }

	_, err := locker.Acquire(context.Background(), 7)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	release, err := locker.Acquire(context.Background(), 7)
	require.NoError(t, err)
	release()
}

func TestRedisLockerAcquireError(t *testing.T) {
	locker, store := newTestLocker(t, time.Minute)
	store.FailOn("set", assert.AnError)

	_, err := locker.Acquire(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, apperr.ErrScanInProgress)
}
