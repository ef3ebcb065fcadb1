package inbound

import (
	"context"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionService defines the interface for the auction state machine
type AuctionService interface {
	// StartAuction opens the lot's next cycle for bidding
	StartAuction(ctx context.Context, req StartAuctionRequest) (*lot.Lot, error)

	// ScheduleAuction records the next cycle's window and opens it at start_time
	ScheduleAuction(ctx context.Context, req StartAuctionRequest) (*lot.Lot, error)

	// ForceEndAuction closes the active cycle before its end time
	ForceEndAuction(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error)

	// GetLot retrieves a lot snapshot with its settlements
	GetLot(ctx context.Context, lotID uuid.UUID) (*LotView, error)
}

// BidService defines the interface for bid ledger operations
type BidService interface {
	// SubmitBid places a new bid on the lot's active cycle
	SubmitBid(ctx context.Context, req SubmitBidRequest) (*bid.Bid, error)

	// HighestActiveBid retrieves the current leader of the lot's latest cycle
	HighestActiveBid(ctx context.Context, lotID uuid.UUID) (*bid.Bid, error)

	// ListBids retrieves the bids of a lot; cycle 0 means every cycle
	ListBids(ctx context.Context, lotID uuid.UUID, cycle int) ([]*bid.Bid, error)
}

// SettlementService defines the interface for the settlement tracker
type SettlementService interface {
	// RecordPaymentConfirmation applies a payment confirmed signal from financial processing
	RecordPaymentConfirmation(ctx context.Context, req PaymentSignal) (*lot.Lot, error)

	// RecordPaymentDefault applies a payment default signal from financial processing
	RecordPaymentDefault(ctx context.Context, req PaymentSignal) (*lot.Lot, error)

	// MarkPaymentDefault defaults the current settlement on administrative request
	MarkPaymentDefault(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error)

	// ResetFailedAttempts clears the failed-attempt counter after manual review
	ResetFailedAttempts(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error)
}

// request to start or schedule an auction; times are RFC3339
type StartAuctionRequest struct {
	LotID     uuid.UUID `json:"lot_id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// request to place a bid
type SubmitBidRequest struct {
	LotID    uuid.UUID       `json:"lot_id"`
	UserID   uuid.UUID       `json:"user_id"`
	ClientID string          `json:"client_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// signal from financial processing about a winning bid
type PaymentSignal struct {
	LotID uuid.UUID `json:"lot_id"`
	BidID uuid.UUID `json:"bid_id"`
}

// LotView is the read model returned by GetLot
type LotView struct {
	*lot.Lot
	State       string                   `json:"state"`
	Settlements []*settlement.Settlement `json:"settlements"`
}
