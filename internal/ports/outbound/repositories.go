package outbound

import (
	"context"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"

	"github.com/google/uuid"
)

// LotChange is the unit of persistence for one lot command: the lot itself plus
// every bid and settlement the command created or moved.
type LotChange struct {
	Lot         *lot.Lot
	Bids        []*bid.Bid
	Settlements []*settlement.Settlement
}

// LotRepository defines the interface for lot data operations
type LotRepository interface {
	// Create stores a lot that does not exist yet
	Create(ctx context.Context, l *lot.Lot) error

	// GetByID retrieves a lot by ID
	GetByID(ctx context.Context, id uuid.UUID) (*lot.Lot, error)

	// Save writes a change atomically using optimistic concurrency control.
	// It fails with shared.ErrConcurrentUpdate when the stored version differs
	// from change.Lot.Version, and bumps change.Lot.Version on success.
	Save(ctx context.Context, change LotChange) error
}

// BidRepository defines the interface for bid data operations
type BidRepository interface {
	// GetByID retrieves a bid by ID
	GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error)

	// ListByLot retrieves the bids of a lot in submission order; cycle 0 means every cycle
	ListByLot(ctx context.Context, lotID uuid.UUID, cycle int) ([]*bid.Bid, error)
}

// SettlementRepository defines the interface for settlement data operations
type SettlementRepository interface {
	// GetByID retrieves a settlement by ID
	GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error)

	// GetByBidID retrieves the settlement opened for a winning bid
	GetByBidID(ctx context.Context, bidID uuid.UUID) (*settlement.Settlement, error)

	// ListByLot retrieves every settlement of a lot ordered by cycle
	ListByLot(ctx context.Context, lotID uuid.UUID) ([]*settlement.Settlement, error)
}
