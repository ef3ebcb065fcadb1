package app

import (
	"context"
	"sync"
	"time"

	"lot-auction-service/internal/adapters/lock"
	"lot-auction-service/internal/adapters/memory"
	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingScheduler keeps armed jobs so tests can fire them by hand
type recordingScheduler struct {
	mu   sync.Mutex
	jobs map[string]outbound.Job
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{jobs: make(map[string]outbound.Job)}
}

func (s *recordingScheduler) Schedule(ctx context.Context, job outbound.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Key()] = job
	return nil
}

func (s *recordingScheduler) Cancel(ctx context.Context, kind outbound.JobKind, lotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, outbound.JobKey(kind, lotID))
	return nil
}

func (s *recordingScheduler) job(kind outbound.JobKind, lotID uuid.UUID) (outbound.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[outbound.JobKey(kind, lotID)]
	return job, ok
}

// recordingSink keeps every published event in order
type recordingSink struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (s *recordingSink) Publish(ctx context.Context, lotID uuid.UUID, event outbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count(eventType outbound.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (s *recordingSink) last(eventType outbound.EventType) (outbound.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i], true
		}
	}
	return outbound.Event{}, false
}

type harness struct {
	t           require.TestingT
	clock       *clock.Fake
	store       *memory.Store
	catalog     *memory.Catalog
	gate        *memory.EligibilityGate
	sink        *recordingSink
	sched       *recordingScheduler
	auctions    *AuctionService
	bids        *BidService
	settlements *SettlementService

	lotID     uuid.UUID
	projectID uuid.UUID
	ownerID   uuid.UUID
	admin     context.Context
	system    context.Context
}

func newHarness(t require.TestingT, policy Policy) *harness {
	h := &harness{
		t:         t,
		clock:     clock.NewFake(t0),
		store:     memory.NewStore(),
		gate:      memory.NewOpenEligibilityGate(),
		sink:      &recordingSink{},
		sched:     newRecordingScheduler(),
		lotID:     uuid.New(),
		projectID: uuid.New(),
		ownerID:   uuid.New(),
	}
	h.catalog = memory.NewCatalog(outbound.CatalogEntry{
		LotID:     h.lotID,
		ProjectID: &h.projectID,
		OwnerID:   &h.ownerID,
		BasePrice: decimal.NewFromInt(1000),
		Active:    true,
	})
	h.admin = shared.WithActor(context.Background(), shared.Actor{ID: uuid.New(), Role: shared.RoleAdmin})
	h.system = shared.WithActor(context.Background(), shared.SystemActor)

	logger := zerolog.Nop()
	mutator := NewLotMutator(LotMutatorParams{
		Locker:    lock.NewKeyedLocker(),
		Lots:      h.store,
		Catalog:   h.catalog,
		Sink:      h.sink,
		Scheduler: h.sched,
		Clock:     h.clock,
		Logger:    logger,
	})
	h.settlements = NewSettlementService(SettlementServiceParams{
		Mutator:        mutator,
		BidRepo:        h.store.Bids(),
		SettlementRepo: h.store.Settlements(),
		Policy:         policy,
		Logger:         logger,
	})
	h.auctions = NewAuctionService(AuctionServiceParams{
		Mutator:        mutator,
		BidRepo:        h.store.Bids(),
		SettlementRepo: h.store.Settlements(),
		Settlements:    h.settlements,
		Clock:          h.clock,
		Policy:         policy,
		Logger:         logger,
	})
	h.bids = NewBidService(BidServiceParams{
		Mutator:     mutator,
		BidRepo:     h.store.Bids(),
		Eligibility: h.gate,
		Clock:       h.clock,
		Logger:      logger,
	})
	return h
}

func userCtx(userID uuid.UUID) context.Context {
	return shared.WithActor(context.Background(), shared.Actor{ID: userID, Role: shared.RoleUser})
}

func window(start time.Time, d time.Duration) inbound.StartAuctionRequest {
	return inbound.StartAuctionRequest{
		StartTime: start.Format(time.RFC3339),
		EndTime:   start.Add(d).Format(time.RFC3339),
	}
}

// start opens a one hour cycle at the fake clock's current time
func (h *harness) start() {
	req := window(h.clock.Now(), time.Hour)
	req.LotID = h.lotID
	_, err := h.auctions.StartAuction(h.admin, req)
	require.NoError(h.t, err)
}

// bid places a bid from a fresh user and returns its id
func (h *harness) bid(amount int64) (uuid.UUID, error) {
	user := uuid.New()
	b, err := h.bids.SubmitBid(userCtx(user), inbound.SubmitBidRequest{
		LotID:  h.lotID,
		UserID: user,
		Amount: decimal.NewFromInt(amount),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return b.ID, nil
}

// fire delivers the armed job of kind, as the scheduler would
func (h *harness) fire(kind outbound.JobKind) outbound.Job {
	job, ok := h.sched.job(kind, h.lotID)
	require.True(h.t, ok, "no %s job armed", kind)
	require.NoError(h.t, h.auctions.HandleJob(context.Background(), job))
	return job
}

// winCycle starts a cycle, accepts one bid and force-closes it; returns the winning bid id
func (h *harness) winCycle(amount int64) uuid.UUID {
	h.start()
	id, err := h.bid(amount)
	require.NoError(h.t, err)
	_, err = h.auctions.ForceEndAuction(h.admin, h.lotID)
	require.NoError(h.t, err)
	return id
}
