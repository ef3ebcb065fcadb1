package memory

import (
	"context"
	"sort"
	"sync"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// Store keeps lots, bids and settlements in memory. It implements
// outbound.LotRepository, outbound.BidRepository and outbound.SettlementRepository.
type Store struct {
	mu          sync.RWMutex
	lots        map[uuid.UUID]*lot.Lot
	bids        map[uuid.UUID]*bid.Bid
	lotBids     map[uuid.UUID][]uuid.UUID
	settlements map[uuid.UUID]*settlement.Settlement
	bidSettle   map[uuid.UUID]uuid.UUID
	lotSettle   map[uuid.UUID][]uuid.UUID
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		lots:        make(map[uuid.UUID]*lot.Lot),
		bids:        make(map[uuid.UUID]*bid.Bid),
		lotBids:     make(map[uuid.UUID][]uuid.UUID),
		settlements: make(map[uuid.UUID]*settlement.Settlement),
		bidSettle:   make(map[uuid.UUID]uuid.UUID),
		lotSettle:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create inserts a new lot; an existing id is a concurrent update
func (s *Store) Create(ctx context.Context, l *lot.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lots[l.ID]; ok {
		return shared.ErrConcurrentUpdate
	}
	s.lots[l.ID] = l.Clone()
	return nil
}

// GetByID returns a copy of the lot
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lots[id]
	if !ok {
		return nil, shared.NewNotFound("lot", id)
	}
	return l.Clone(), nil
}

// Save writes the lot with its bids and settlements if the version still matches
func (s *Store) Save(ctx context.Context, change outbound.LotChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.lots[change.Lot.ID]
	if !ok {
		return shared.NewNotFound("lot", change.Lot.ID)
	}
	if stored.Version != change.Lot.Version {
		return shared.ErrConcurrentUpdate
	}

	change.Lot.Version++
	s.lots[change.Lot.ID] = change.Lot.Clone()

	for _, b := range change.Bids {
		if _, exists := s.bids[b.ID]; !exists {
			s.lotBids[b.LotID] = append(s.lotBids[b.LotID], b.ID)
		}
		s.bids[b.ID] = b.Clone()
	}
	for _, st := range change.Settlements {
		if _, exists := s.settlements[st.ID]; !exists {
			s.lotSettle[st.LotID] = append(s.lotSettle[st.LotID], st.ID)
		}
		s.settlements[st.ID] = st.Clone()
		s.bidSettle[st.BidID] = st.ID
	}
	return nil
}

// Bids returns a view of the store as an outbound.BidRepository
func (s *Store) Bids() outbound.BidRepository {
	return bidRepository{s}
}

// Settlements returns a view of the store as an outbound.SettlementRepository
func (s *Store) Settlements() outbound.SettlementRepository {
	return settlementRepository{s}
}

type bidRepository struct{ s *Store }

// GetByID returns a copy of the bid
func (r bidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bids[id]
	if !ok {
		return nil, shared.NewNotFound("bid", id)
	}
	return b.Clone(), nil
}

// ListByLot returns the lot's bids in arrival order; cycle 0 means every cycle
func (r bidRepository) ListByLot(ctx context.Context, lotID uuid.UUID, cycle int) ([]*bid.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*bid.Bid
	for _, id := range r.s.lotBids[lotID] {
		b := r.s.bids[id]
		if cycle != 0 && b.Cycle != cycle {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type settlementRepository struct{ s *Store }

// GetByID returns a copy of the settlement
func (r settlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.settlements[id]
	if !ok {
		return nil, shared.NewNotFound("settlement", id)
	}
	return st.Clone(), nil
}

// GetByBidID returns the settlement opened for a winning bid
func (r settlementRepository) GetByBidID(ctx context.Context, bidID uuid.UUID) (*settlement.Settlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.bidSettle[bidID]
	if !ok {
		return nil, shared.NewNotFound("settlement", bidID)
	}
	return r.s.settlements[id].Clone(), nil
}

// ListByLot returns the lot's settlements ordered by cycle
func (r settlementRepository) ListByLot(ctx context.Context, lotID uuid.UUID) ([]*settlement.Settlement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*settlement.Settlement, 0, len(r.s.lotSettle[lotID]))
	for _, id := range r.s.lotSettle[lotID] {
		out = append(out, r.s.settlements[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}
