package redis

import (
	"context"
	"testing"
	"time"

	"lot-auction-service/internal/config"
	"lot-auction-service/internal/ports/outbound"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestJobStoreOrdersByFireTime(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewJobStore(client, "test:timers")
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	late := outbound.Job{Kind: outbound.JobPaymentDeadline, LotID: uuid.New(), Cycle: 2, FireAt: base.Add(time.Hour)}
	early := outbound.Job{Kind: outbound.JobAuctionEnd, LotID: uuid.New(), Cycle: 1, FireAt: base}
	require.NoError(t, store.Put(ctx, late))
	require.NoError(t, store.Put(ctx, early))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, early.Key(), jobs[0].Key())
	assert.Equal(t, late.Key(), jobs[1].Key())
	assert.True(t, late.FireAt.Equal(jobs[1].FireAt))
	assert.Equal(t, 2, jobs[1].Cycle)

	assert.True(t, mr.Exists("test:timers"))
	assert.True(t, mr.Exists("test:timers:jobs"))
}

func TestJobStorePutReplacesSlot(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client, "")
	ctx := context.Background()
	lotID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, outbound.Job{Kind: outbound.JobAuctionEnd, LotID: lotID, Cycle: 1, FireAt: base}))
	require.NoError(t, store.Put(ctx, outbound.Job{Kind: outbound.JobAuctionEnd, LotID: lotID, Cycle: 1, FireAt: base.Add(time.Minute)}))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, base.Add(time.Minute).Equal(jobs[0].FireAt))
}

func TestJobStoreDelete(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client, "test:timers")
	ctx := context.Background()

	job := outbound.Job{Kind: outbound.JobAuctionStart, LotID: uuid.New(), Cycle: 1, FireAt: time.Now()}
	require.NoError(t, store.Put(ctx, job))
	require.NoError(t, store.Delete(ctx, job.Key()))
	require.NoError(t, store.Delete(ctx, job.Key()))

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobStoreDropsEntriesWithoutBody(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewJobStore(client, "test:timers")
	ctx := context.Background()

	_, err := mr.ZAdd("test:timers", 1, "auction_end:orphan")
	require.NoError(t, err)

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.False(t, mr.Exists("test:timers"))
}

func TestJobStoreDropsOrphanAndKeepsOthers(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewJobStore(client, "test:timers")
	ctx := context.Background()

	job := outbound.Job{Kind: outbound.JobAuctionEnd, LotID: uuid.New(), Cycle: 1, FireAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Put(ctx, job))
	_, err := mr.ZAdd("test:timers", 1, "auction_end:orphan")
	require.NoError(t, err)

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.LotID, jobs[0].LotID)

	members, err := mr.ZMembers("test:timers")
	require.NoError(t, err)
	assert.Equal(t, []string{job.Key()}, members)
}

func TestPingRedis(t *testing.T) {
	mr, client := newTestClient(t)
	require.NoError(t, PingRedis(context.Background(), client))

	mr.Close()
	assert.Error(t, PingRedis(context.Background(), client))
}

func TestNewClientUsesPoolSettings(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Redis: config.RedisConfig{
		Addr:         mr.Addr(),
		DB:           2,
		PoolSize:     7,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}}

	client := NewClient(cfg)
	t.Cleanup(func() { client.Close() })

	opts := client.Options()
	assert.Equal(t, mr.Addr(), opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2, opts.MinIdleConns)
	assert.Equal(t, 1, opts.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, opts.ReadTimeout)
	require.NoError(t, PingRedis(context.Background(), client))
}
