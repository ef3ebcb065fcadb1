package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultRetryDelay = 5 * time.Second

// AuctionScheduler keeps one timer per lot per pending transition. Fired jobs
// run on a bounded worker pool, so a slow lot never delays another lot's timers.
// Jobs are written to the JobStore before they are armed and removed only after
// their handler succeeds, which gives at-least-once delivery across restarts.
type AuctionScheduler struct {
	clock      clock.Clock
	store      outbound.JobStore
	handler    outbound.JobHandler
	pool       *pond.WorkerPool
	retryDelay time.Duration
	logger     zerolog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	timers map[string]*entry
	gen    uint64

	// stopMu keeps Submit and pool shutdown apart; pond panics on submit to a stopped pool
	stopMu  sync.RWMutex
	stopped atomic.Bool
}

type entry struct {
	job   outbound.Job
	timer clock.Timer
	gen   uint64
}

type AuctionSchedulerParams struct {
	Clock         clock.Clock
	Store         outbound.JobStore
	Handler       outbound.JobHandler
	Workers       int
	QueueCapacity int
	RetryDelay    time.Duration
	Logger        zerolog.Logger
}

var ErrSchedulerStopped = errors.New("scheduler stopped")

func NewAuctionScheduler(params AuctionSchedulerParams) *AuctionScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	c := params.Clock
	if c == nil {
		c = clock.New()
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 16
	}
	capacity := params.QueueCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	logger := params.Logger.With().Str("component", "auction_scheduler").Logger()
	pool := pond.New(
		workers,
		capacity,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error().Interface("panic", p).Msg("Scheduled job panicked")
		}),
	)

	return &AuctionScheduler{
		clock:      c,
		store:      params.Store,
		handler:    params.Handler,
		pool:       pool,
		retryDelay: retryDelay,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		timers:     make(map[string]*entry),
	}
}

// Start re-arms every job persisted by a previous run. Jobs already due fire immediately.
func (s *AuctionScheduler) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting auction scheduler")
	if s.store == nil {
		return nil
	}

	jobs, err := s.store.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load persisted jobs")
		return fmt.Errorf("failed to load persisted jobs: %w", err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	for _, job := range jobs {
		s.arm(job)
	}

	s.logger.Info().Int("count", len(jobs)).Msg("Persisted jobs restored")
	return nil
}

// Stop disarms all timers and waits for running jobs. Persisted jobs stay in
// the store and are restored by the next Start.
func (s *AuctionScheduler) Stop() {
	s.logger.Info().Msg("Stopping auction scheduler")

	s.stopMu.Lock()
	if s.stopped.Load() {
		s.stopMu.Unlock()
		return
	}
	s.stopped.Store(true)
	s.stopMu.Unlock()

	s.mu.Lock()
	for key, e := range s.timers {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.pool.StopAndWait()
	s.cancel()
	s.logger.Info().Msg("Auction scheduler stopped")
}

// Schedule implements outbound.Scheduler
func (s *AuctionScheduler) Schedule(ctx context.Context, job outbound.Job) error {
	if s.isStopped() {
		return ErrSchedulerStopped
	}
	if s.store != nil {
		if err := s.store.Put(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("key", job.Key()).Msg("Failed to persist job")
			return fmt.Errorf("failed to persist job: %w", err)
		}
	}
	s.arm(job)

	s.logger.Info().
		Str("lot_id", job.LotID.String()).
		Str("kind", string(job.Kind)).
		Int("cycle", job.Cycle).
		Time("fire_at", job.FireAt).
		Msg("Job scheduled")
	return nil
}

// Cancel implements outbound.Scheduler
func (s *AuctionScheduler) Cancel(ctx context.Context, kind outbound.JobKind, lotID uuid.UUID) error {
	key := outbound.JobKey(kind, lotID)

	s.mu.Lock()
	e, ok := s.timers[key]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to delete persisted job")
			return fmt.Errorf("failed to delete persisted job: %w", err)
		}
	}
	if ok {
		s.logger.Debug().Str("key", key).Msg("Job cancelled")
	}
	return nil
}

// Scheduled returns the armed jobs ordered by fire time
func (s *AuctionScheduler) Scheduled() []outbound.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]outbound.Job, 0, len(s.timers))
	for _, e := range s.timers {
		jobs = append(jobs, e.job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs
}

func (s *AuctionScheduler) arm(job outbound.Job) {
	key := job.Key()

	s.mu.Lock()
	if old, ok := s.timers[key]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timers[key] = &entry{job: job, gen: gen}
	s.mu.Unlock()

	// AfterFunc may fire synchronously for due jobs, so it runs outside the lock
	timer := s.clock.AfterFunc(job.FireAt.Sub(s.clock.Now()), func() {
		s.dispatch(key, gen)
	})

	s.mu.Lock()
	if e, ok := s.timers[key]; ok && e.gen == gen {
		e.timer = timer
	}
	s.mu.Unlock()
}

func (s *AuctionScheduler) dispatch(key string, gen uint64) {
	s.stopMu.RLock()
	defer s.stopMu.RUnlock()
	if s.stopped.Load() {
		return
	}
	s.pool.Submit(func() {
		s.run(key, gen)
	})
}

func (s *AuctionScheduler) run(key string, gen uint64) {
	s.mu.Lock()
	e, ok := s.timers[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	job := e.job
	s.mu.Unlock()

	log := s.logger.With().
		Str("lot_id", job.LotID.String()).
		Str("kind", string(job.Kind)).
		Int("cycle", job.Cycle).
		Logger()
	log.Info().Msg("Processing scheduled job")

	if err := s.handler.HandleJob(s.ctx, job); err != nil {
		if s.ctx.Err() != nil {
			log.Warn().Err(err).Msg("Job interrupted by shutdown, left for recovery")
			return
		}
		log.Error().Err(err).Dur("retry_in", s.retryDelay).Msg("Scheduled job failed, retrying")
		s.retry(key, gen, job)
		return
	}

	s.mu.Lock()
	current, ok := s.timers[key]
	done := ok && current.gen == gen
	if done {
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if done && s.store != nil {
		if err := s.store.Delete(s.ctx, key); err != nil {
			log.Error().Err(err).Msg("Failed to delete completed job")
		}
	}
	log.Debug().Msg("Scheduled job completed")
}

// retry re-arms a failed job unless it was replaced or cancelled meanwhile
func (s *AuctionScheduler) retry(key string, gen uint64, job outbound.Job) {
	if s.isStopped() {
		return
	}
	s.mu.Lock()
	current, ok := s.timers[key]
	s.mu.Unlock()
	if !ok || current.gen != gen {
		return
	}
	job.FireAt = s.clock.Now().Add(s.retryDelay)
	s.arm(job)
}

func (s *AuctionScheduler) isStopped() bool {
	return s.stopped.Load()
}
