package app

import (
	"context"
	"fmt"

	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BidService implements the bid ledger
type BidService struct {
	mutator     *LotMutator
	bidRepo     outbound.BidRepository
	eligibility outbound.EligibilityGate
	clock       clock.Clock
	logger      zerolog.Logger
}

type BidServiceParams struct {
	Mutator     *LotMutator
	BidRepo     outbound.BidRepository
	Eligibility outbound.EligibilityGate
	Clock       clock.Clock
	Logger      zerolog.Logger
}

// NewBidService creates a new bid service
func NewBidService(params BidServiceParams) *BidService {
	c := params.Clock
	if c == nil {
		c = clock.New()
	}
	return &BidService{
		mutator:     params.Mutator,
		bidRepo:     params.BidRepo,
		eligibility: params.Eligibility,
		clock:       c,
		logger:      params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// SubmitBid places a new bid. The submission time is taken on entry; the
// window, eligibility and amount checks then run under the lot's lock against
// the latest committed state, so ties never both win.
func (service *BidService) SubmitBid(ctx context.Context, req inbound.SubmitBidRequest) (*bid.Bid, error) {
	submittedAt := service.clock.Now()

	service.logger.Info().
		Str("lot_id", req.LotID.String()).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Msg("Attempting to place bid")

	if !req.Amount.IsPositive() {
		service.logger.Warn().Str("amount", req.Amount.String()).Msg("Invalid bid amount (must be > 0)")
		return nil, shared.ErrInvalidAmount
	}
	if err := authorizeBidder(ctx, req.UserID); err != nil {
		return nil, err
	}

	var placed *bid.Bid
	_, err := service.mutator.mutate(ctx, req.LotID, func(mu *mutation) error {
		if err := mu.lot.AcceptsBidAt(submittedAt); err != nil {
			return err
		}

		if mu.lot.ProjectID == nil {
			return &shared.InvalidStateError{Op: "place bid", State: string(mu.lot.State()), Reason: "lot has no project"}
		}
		ok, err := service.eligibility.CheckEligibility(ctx, req.UserID, *mu.lot.ProjectID)
		if err != nil {
			return fmt.Errorf("check eligibility: %w", err)
		}
		if !ok {
			return &shared.NotEligibleError{UserID: req.UserID, ProjectID: *mu.lot.ProjectID}
		}

		minimum := mu.lot.MinimumBid()
		if !req.Amount.GreaterThan(minimum) {
			service.logger.Warn().
				Str("lot_id", req.LotID.String()).
				Str("minimum", minimum.String()).
				Str("amount", req.Amount.String()).
				Msg("Bid amount too low (must be higher than current highest bid)")
			return &shared.BidTooLowError{Amount: req.Amount, Minimum: minimum}
		}

		c := mu.lot.Current()
		placed = bid.New(mu.lot.ID, c.Number, req.UserID, req.Amount, submittedAt)
		mu.lot.RecordBid(placed.ID, placed.Amount, mu.now)
		mu.bids = append(mu.bids, placed)
		mu.emit(outbound.EventTypeBidPlaced, map[string]interface{}{
			"bid_id":    placed.ID,
			"user_id":   placed.UserID,
			"amount":    placed.Amount.String(),
			"timestamp": placed.CreatedAt.Unix(),
		})
		return nil
	})
	if err != nil {
		service.logger.Warn().Err(err).
			Str("lot_id", req.LotID.String()).
			Str("user_id", req.UserID.String()).
			Msg("Bid rejected")
		return nil, err
	}

	service.logger.Info().
		Str("bid_id", placed.ID.String()).
		Str("lot_id", placed.LotID.String()).
		Str("user_id", placed.UserID.String()).
		Int("cycle", placed.Cycle).
		Str("amount", placed.Amount.String()).
		Msg("Bid placed successfully")
	return placed.Clone(), nil
}

// HighestActiveBid retrieves the current leader of the lot's latest cycle
func (service *BidService) HighestActiveBid(ctx context.Context, lotID uuid.UUID) (*bid.Bid, error) {
	l, err := service.mutator.load(ctx, lotID, false)
	if err != nil {
		return nil, err
	}
	bids, err := service.bidRepo.ListByLot(ctx, lotID, l.Current().Number)
	if err != nil {
		return nil, err
	}
	highest := bid.Highest(bids)
	if highest == nil {
		return nil, shared.ErrNoBidsFound
	}
	return highest, nil
}

// ListBids retrieves the bids of a lot; cycle 0 means every cycle
func (service *BidService) ListBids(ctx context.Context, lotID uuid.UUID, cycle int) ([]*bid.Bid, error) {
	if _, err := service.mutator.load(ctx, lotID, false); err != nil {
		return nil, err
	}
	return service.bidRepo.ListByLot(ctx, lotID, cycle)
}
