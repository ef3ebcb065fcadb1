package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lot-auction-service/internal/adapters/memory"
	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingHandler counts deliveries per job key and can fail the first attempts
type recordingHandler struct {
	mu       sync.Mutex
	calls    map[string]int
	failures int
}

func (h *recordingHandler) HandleJob(ctx context.Context, job outbound.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[job.Key()]++
	if h.failures > 0 {
		h.failures--
		return errors.New("store unavailable")
	}
	return nil
}

func (h *recordingHandler) count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[key]
}

func newScheduler(clk clock.Clock, store outbound.JobStore, handler outbound.JobHandler) *AuctionScheduler {
	return NewAuctionScheduler(AuctionSchedulerParams{
		Clock:      clk,
		Store:      store,
		Handler:    handler,
		Workers:    2,
		RetryDelay: time.Second,
		Logger:     zerolog.Nop(),
	})
}

func endJob(lotID uuid.UUID, at time.Time) outbound.Job {
	return outbound.Job{Kind: outbound.JobAuctionEnd, LotID: lotID, Cycle: 1, FireAt: at}
}

func storedKeys(t *testing.T, store outbound.JobStore) []string {
	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	keys := make([]string, 0, len(jobs))
	for _, j := range jobs {
		keys = append(keys, j.Key())
	}
	return keys
}

func TestJobFiresWhenDue(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.NewJobStore()
	handler := &recordingHandler{}
	s := newScheduler(clk, store, handler)
	defer s.Stop()

	job := endJob(uuid.New(), t0.Add(time.Minute))
	require.NoError(t, s.Schedule(context.Background(), job))
	assert.Equal(t, []string{job.Key()}, storedKeys(t, store))

	clk.Advance(30 * time.Second)
	assert.Zero(t, handler.count(job.Key()))

	clk.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return handler.count(job.Key()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(storedKeys(t, store)) == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Scheduled())
}

func TestCancelDisarms(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.NewJobStore()
	handler := &recordingHandler{}
	s := newScheduler(clk, store, handler)
	defer s.Stop()

	job := endJob(uuid.New(), t0.Add(time.Minute))
	require.NoError(t, s.Schedule(context.Background(), job))
	require.NoError(t, s.Cancel(context.Background(), job.Kind, job.LotID))
	// cancelling an empty slot is fine
	require.NoError(t, s.Cancel(context.Background(), job.Kind, job.LotID))

	clk.Advance(time.Hour)
	assert.Zero(t, clk.Pending())
	assert.Empty(t, storedKeys(t, store))
	assert.Zero(t, handler.count(job.Key()))
}

func TestRescheduleReplacesSlot(t *testing.T) {
	clk := clock.NewFake(t0)
	handler := &recordingHandler{}
	s := newScheduler(clk, memory.NewJobStore(), handler)
	defer s.Stop()

	lotID := uuid.New()
	require.NoError(t, s.Schedule(context.Background(), endJob(lotID, t0.Add(time.Minute))))
	later := endJob(lotID, t0.Add(5*time.Minute))
	require.NoError(t, s.Schedule(context.Background(), later))
	require.Len(t, s.Scheduled(), 1)

	clk.Advance(time.Minute)
	assert.Zero(t, handler.count(later.Key()))

	clk.Advance(4 * time.Minute)
	require.Eventually(t, func() bool { return handler.count(later.Key()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailedJobIsRetried(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.NewJobStore()
	handler := &recordingHandler{failures: 1}
	s := newScheduler(clk, store, handler)
	defer s.Stop()

	job := endJob(uuid.New(), t0.Add(time.Minute))
	require.NoError(t, s.Schedule(context.Background(), job))

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return handler.count(job.Key()) == 1 && clk.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, storedKeys(t, store), 1, "failed job stays persisted")

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return handler.count(job.Key()) == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(storedKeys(t, store)) == 0 }, time.Second, 5*time.Millisecond)
}

func TestStartRestoresPersistedJobs(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.NewJobStore()
	overdue := endJob(uuid.New(), t0.Add(-time.Minute))
	future := outbound.Job{Kind: outbound.JobPaymentDeadline, LotID: uuid.New(), Cycle: 1, FireAt: t0.Add(time.Hour)}
	require.NoError(t, store.Put(context.Background(), overdue))
	require.NoError(t, store.Put(context.Background(), future))

	handler := &recordingHandler{}
	s := newScheduler(clk, store, handler)
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return handler.count(overdue.Key()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, handler.count(future.Key()))

	clk.Advance(time.Hour)
	require.Eventually(t, func() bool { return handler.count(future.Key()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopKeepsPersistedJobs(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.NewJobStore()
	handler := &recordingHandler{}
	s := newScheduler(clk, store, handler)

	job := endJob(uuid.New(), t0.Add(time.Minute))
	require.NoError(t, s.Schedule(context.Background(), job))
	s.Stop()
	s.Stop()

	assert.ErrorIs(t, s.Schedule(context.Background(), job), ErrSchedulerStopped)
	clk.Advance(time.Hour)
	assert.Zero(t, handler.count(job.Key()))
	assert.Equal(t, []string{job.Key()}, storedKeys(t, store))
}
