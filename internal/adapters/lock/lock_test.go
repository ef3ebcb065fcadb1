package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeyedLockerSerializesPerLot(t *testing.T) {
	l := NewKeyedLocker()
	lotID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), lotID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.Held())
}

func TestKeyedLockerIndependentLots(t *testing.T) {
	l := NewKeyedLocker()
	unlockA, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	unlockB, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, l.Held())

	unlockA()
	unlockA()
	unlockB()
	assert.Zero(t, l.Held())
}

func TestKeyedLockerWaiterGivesUp(t *testing.T) {
	l := NewKeyedLocker()
	lotID := uuid.New()
	unlock, err := l.Lock(context.Background(), lotID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, lotID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.Held())

	unlock()
	assert.Zero(t, l.Held())
}

func newRedisLocker(t *testing.T) *RedisLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(RedisLockerParams{
		Client:     client,
		Expiry:     time.Second,
		RetryDelay: 5 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker := newRedisLocker(t)
	lotID := uuid.New()

	unlock, err := locker.Lock(context.Background(), lotID)
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		next, err := locker.Lock(context.Background(), lotID)
		if err == nil {
			acquired <- next
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case next := <-acquired:
		next()
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not handed over")
	}
}

func TestRedisLockerContextCancel(t *testing.T) {
	locker := newRedisLocker(t)
	lotID := uuid.New()

	unlock, err := locker.Lock(context.Background(), lotID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, lotID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
