package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LotMutator runs every state change of a lot under the lot's lock, persists it
// in one optimistic write and only then arms timers and publishes events.
type LotMutator struct {
	locker    outbound.LotLocker
	lots      outbound.LotRepository
	catalog   outbound.Catalog
	sink      outbound.EventSink
	scheduler outbound.Scheduler
	clock     clock.Clock
	logger    zerolog.Logger
}

type LotMutatorParams struct {
	Locker    outbound.LotLocker
	Lots      outbound.LotRepository
	Catalog   outbound.Catalog
	Sink      outbound.EventSink
	Scheduler outbound.Scheduler
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// NewLotMutator creates a new lot mutator
func NewLotMutator(params LotMutatorParams) *LotMutator {
	c := params.Clock
	if c == nil {
		c = clock.New()
	}
	return &LotMutator{
		locker:    params.Locker,
		lots:      params.Lots,
		catalog:   params.Catalog,
		sink:      params.Sink,
		scheduler: params.Scheduler,
		clock:     c,
		logger:    params.Logger.With().Str("component", "lot_mutator").Logger(),
	}
}

// SetScheduler sets the timer scheduler; the scheduler needs the services to exist first
func (m *LotMutator) SetScheduler(scheduler outbound.Scheduler) {
	m.scheduler = scheduler
}

// mutation collects the effects of one command on one lot
type mutation struct {
	lot         *lot.Lot
	now         time.Time
	bids        []*bid.Bid
	settlements []*settlement.Settlement
	events      []outbound.Event
	jobs        []outbound.Job
	cancels     []outbound.JobKind
	noop        bool
}

func (mu *mutation) emit(eventType outbound.EventType, data map[string]interface{}) {
	mu.events = append(mu.events, outbound.NewEvent(eventType, mu.lot.ID, mu.lot.Current().Number, mu.now, data))
}

func (mu *mutation) schedule(job outbound.Job) {
	mu.jobs = append(mu.jobs, job)
}

func (mu *mutation) cancel(kind outbound.JobKind) {
	mu.cancels = append(mu.cancels, kind)
}

// mutate applies fn to the lot under its lock. fn must not block on other lots.
func (m *LotMutator) mutate(ctx context.Context, lotID uuid.UUID, fn func(*mutation) error) (*lot.Lot, error) {
	unlock, err := m.locker.Lock(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("lock lot %s: %w", lotID, err)
	}
	defer unlock()

	l, err := m.load(ctx, lotID, true)
	if err != nil {
		return nil, err
	}

	mu := &mutation{lot: l, now: m.clock.Now()}
	if err := fn(mu); err != nil {
		return nil, err
	}
	if mu.noop {
		return l.Clone(), nil
	}

	change := outbound.LotChange{Lot: l, Bids: mu.bids, Settlements: mu.settlements}
	if err := m.lots.Save(ctx, change); err != nil {
		m.logger.Error().Err(err).Str("lot_id", lotID.String()).Msg("Failed to save lot")
		return nil, err
	}

	m.applyTimers(ctx, mu)
	m.publish(ctx, mu)

	return l.Clone(), nil
}

// load reads a lot. Unknown lots present in the catalog are materialized from
// their catalog entry, and stored only when create is set.
func (m *LotMutator) load(ctx context.Context, lotID uuid.UUID, create bool) (*lot.Lot, error) {
	l, err := m.lots.GetByID(ctx, lotID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, shared.ErrNotFound) || m.catalog == nil {
		return nil, err
	}

	entry, err := m.catalogEntry(ctx, lotID)
	if err != nil {
		return nil, err
	}
	l = lot.New(lotID, entry.ProjectID, entry.OwnerID, entry.BasePrice, entry.Active, m.clock.Now())
	if !create {
		return l, nil
	}

	if err := m.lots.Create(ctx, l); err != nil {
		if errors.Is(err, shared.ErrConcurrentUpdate) {
			return m.lots.GetByID(ctx, lotID)
		}
		m.logger.Error().Err(err).Str("lot_id", lotID.String()).Msg("Failed to create lot from catalog")
		return nil, err
	}
	m.logger.Info().
		Str("lot_id", lotID.String()).
		Str("base_price", l.BasePrice.String()).
		Bool("active", l.Active).
		Msg("Lot loaded from catalog")
	return l, nil
}

func (m *LotMutator) catalogEntry(ctx context.Context, lotID uuid.UUID) (*outbound.CatalogEntry, error) {
	entry, err := m.catalog.GetLotCatalogEntry(ctx, lotID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		m.logger.Error().Err(err).Str("lot_id", lotID.String()).Msg("Catalog lookup failed")
		return nil, fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}
	return entry, nil
}

// refreshCatalog pulls the latest catalog attributes into a lot about to start
func (m *LotMutator) refreshCatalog(ctx context.Context, mu *mutation) error {
	if m.catalog == nil {
		return nil
	}
	entry, err := m.catalogEntry(ctx, mu.lot.ID)
	if err != nil {
		return err
	}
	mu.lot.ApplyCatalog(entry.ProjectID, entry.OwnerID, entry.BasePrice, entry.Active, mu.now)
	return nil
}

func (m *LotMutator) applyTimers(ctx context.Context, mu *mutation) {
	if m.scheduler == nil {
		return
	}
	for _, kind := range mu.cancels {
		if err := m.scheduler.Cancel(ctx, kind, mu.lot.ID); err != nil {
			m.logger.Error().Err(err).
				Str("lot_id", mu.lot.ID.String()).
				Str("kind", string(kind)).
				Msg("Failed to cancel timer")
		}
	}
	for _, job := range mu.jobs {
		if err := m.scheduler.Schedule(ctx, job); err != nil {
			m.logger.Error().Err(err).
				Str("lot_id", job.LotID.String()).
				Str("kind", string(job.Kind)).
				Time("fire_at", job.FireAt).
				Msg("Failed to schedule timer")
		}
	}
}

func (m *LotMutator) publish(ctx context.Context, mu *mutation) {
	if m.sink == nil {
		return
	}
	for _, event := range mu.events {
		if err := m.sink.Publish(ctx, event.LotID, event); err != nil {
			// The state change is committed; delivery failures are not reported to the caller
			m.logger.Error().Err(err).
				Str("lot_id", event.LotID.String()).
				Str("event_type", string(event.Type)).
				Msg("Failed to publish lifecycle event")
		}
	}
}
