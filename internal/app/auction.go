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
	"lot-auction-service/internal/ports/inbound"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuctionService implements the auction state machine and outbound.JobHandler
type AuctionService struct {
	mutator     *LotMutator
	bidRepo     outbound.BidRepository
	settleRepo  outbound.SettlementRepository
	settlements *SettlementService
	clock       clock.Clock
	policy      Policy
	logger      zerolog.Logger
}

type AuctionServiceParams struct {
	Mutator        *LotMutator
	BidRepo        outbound.BidRepository
	SettlementRepo outbound.SettlementRepository
	Settlements    *SettlementService
	Clock          clock.Clock
	Policy         Policy
	Logger         zerolog.Logger
}

// NewAuctionService creates a new auction service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	c := params.Clock
	if c == nil {
		c = clock.New()
	}
	return &AuctionService{
		mutator:     params.Mutator,
		bidRepo:     params.BidRepo,
		settleRepo:  params.SettlementRepo,
		settlements: params.Settlements,
		clock:       c,
		policy:      params.Policy,
		logger:      params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// StartAuction opens the lot's next cycle for bidding immediately
func (service *AuctionService) StartAuction(ctx context.Context, req inbound.StartAuctionRequest) (*lot.Lot, error) {
	service.logger.Info().
		Str("lot_id", req.LotID.String()).
		Str("start_time", req.StartTime).
		Str("end_time", req.EndTime).
		Msg("Attempting to start auction")

	startTime, endTime, err := service.parseWindow(req)
	if err != nil {
		return nil, err
	}

	updated, err := service.mutator.mutate(ctx, req.LotID, func(mu *mutation) error {
		if err := authorizeLotCommand(ctx, mu.lot); err != nil {
			return err
		}
		if err := service.mutator.refreshCatalog(ctx, mu); err != nil {
			return err
		}

		c, err := mu.lot.Start(startTime, endTime, mu.now)
		if err != nil {
			return err
		}

		mu.cancel(outbound.JobAuctionStart)
		mu.schedule(outbound.Job{Kind: outbound.JobAuctionEnd, LotID: mu.lot.ID, Cycle: c.Number, FireAt: endTime})
		mu.emit(outbound.EventTypeAuctionStarted, map[string]interface{}{
			"start_time": startTime,
			"end_time":   endTime,
			"base_price": mu.lot.BasePrice.String(),
		})
		return nil
	})
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", req.LotID.String()).Msg("Failed to start auction")
		return nil, err
	}

	service.logger.Info().
		Str("lot_id", updated.ID.String()).
		Int("cycle", updated.Current().Number).
		Time("end_time", endTime).
		Msg("Auction started")
	return updated, nil
}

// ScheduleAuction records the window of the lot's next cycle; the scheduler opens it at start_time
func (service *AuctionService) ScheduleAuction(ctx context.Context, req inbound.StartAuctionRequest) (*lot.Lot, error) {
	service.logger.Info().
		Str("lot_id", req.LotID.String()).
		Str("start_time", req.StartTime).
		Str("end_time", req.EndTime).
		Msg("Attempting to schedule auction")

	startTime, endTime, err := service.parseWindow(req)
	if err != nil {
		return nil, err
	}

	updated, err := service.mutator.mutate(ctx, req.LotID, func(mu *mutation) error {
		if err := authorizeLotCommand(ctx, mu.lot); err != nil {
			return err
		}
		if err := service.mutator.refreshCatalog(ctx, mu); err != nil {
			return err
		}

		c, err := mu.lot.Schedule(startTime, endTime, mu.now)
		if err != nil {
			return err
		}

		mu.schedule(outbound.Job{Kind: outbound.JobAuctionStart, LotID: mu.lot.ID, Cycle: c.Number, FireAt: startTime})
		mu.emit(outbound.EventTypeAuctionScheduled, map[string]interface{}{
			"start_time": startTime,
			"end_time":   endTime,
		})
		return nil
	})
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", req.LotID.String()).Msg("Failed to schedule auction")
		return nil, err
	}

	service.logger.Info().
		Str("lot_id", updated.ID.String()).
		Int("cycle", updated.Current().Number).
		Time("start_time", startTime).
		Msg("Auction scheduled")
	return updated, nil
}

// ForceEndAuction closes the active cycle now and cancels its natural end timer
func (service *AuctionService) ForceEndAuction(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error) {
	service.logger.Info().Str("lot_id", lotID.String()).Msg("Attempting to force end auction")

	var result *shared.CloseResult
	updated, err := service.mutator.mutate(ctx, lotID, func(mu *mutation) error {
		if err := authorizeLotCommand(ctx, mu.lot); err != nil {
			return err
		}
		res, err := service.closeCycle(ctx, mu)
		result = res
		return err
	})
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", lotID.String()).Msg("Failed to force end auction")
		return nil, err
	}

	service.logClose(result, "Auction force ended")
	return updated, nil
}

// GetLot retrieves a lot snapshot with its settlement history
func (service *AuctionService) GetLot(ctx context.Context, lotID uuid.UUID) (*inbound.LotView, error) {
	l, err := service.mutator.load(ctx, lotID, false)
	if err != nil {
		return nil, err
	}
	settlements, err := service.settleRepo.ListByLot(ctx, lotID)
	if err != nil {
		service.logger.Error().Err(err).Str("lot_id", lotID.String()).Msg("Failed to list settlements")
		return nil, err
	}
	return &inbound.LotView{Lot: l, State: string(l.State()), Settlements: settlements}, nil
}

// HandleJob implements outbound.JobHandler. Jobs that no longer match the lot's
// current cycle are dropped, which keeps duplicate deliveries harmless.
func (service *AuctionService) HandleJob(ctx context.Context, job outbound.Job) error {
	log := service.logger.With().
		Str("lot_id", job.LotID.String()).
		Str("kind", string(job.Kind)).
		Int("cycle", job.Cycle).
		Logger()
	log.Debug().Msg("Handling scheduled job")

	var err error
	switch job.Kind {
	case outbound.JobAuctionStart:
		err = service.activateScheduled(ctx, job)
	case outbound.JobAuctionEnd:
		err = service.endScheduled(ctx, job)
	case outbound.JobPaymentDeadline:
		if job.SettlementID == nil {
			log.Warn().Msg("Payment deadline job without settlement id")
			return nil
		}
		if service.settlements == nil {
			return fmt.Errorf("no settlement tracker for %s", job.Key())
		}
		err = service.settlements.ExpireDeadline(ctx, job.LotID, *job.SettlementID)
	default:
		log.Warn().Msg("Unknown job kind")
		return nil
	}

	if err != nil && isDomainError(err) {
		log.Warn().Err(err).Msg("Scheduled job rejected")
		return nil
	}
	return err
}

func (service *AuctionService) activateScheduled(ctx context.Context, job outbound.Job) error {
	updated, err := service.mutator.mutate(ctx, job.LotID, func(mu *mutation) error {
		if !mu.lot.Activate(job.Cycle, mu.now) {
			mu.noop = true
			return nil
		}
		c := mu.lot.Current()
		mu.schedule(outbound.Job{Kind: outbound.JobAuctionEnd, LotID: mu.lot.ID, Cycle: c.Number, FireAt: *c.EndTime})
		mu.emit(outbound.EventTypeAuctionStarted, map[string]interface{}{
			"start_time": *c.StartTime,
			"end_time":   *c.EndTime,
			"base_price": mu.lot.BasePrice.String(),
		})
		return nil
	})
	if err != nil {
		return err
	}
	service.logger.Info().
		Str("lot_id", updated.ID.String()).
		Str("state", string(updated.State())).
		Int("cycle", updated.Current().Number).
		Msg("Scheduled auction start processed")
	return nil
}

func (service *AuctionService) endScheduled(ctx context.Context, job outbound.Job) error {
	var result *shared.CloseResult
	_, err := service.mutator.mutate(ctx, job.LotID, func(mu *mutation) error {
		c := mu.lot.Current()
		if c.Number != job.Cycle || !c.IsActive() {
			mu.noop = true
			return nil
		}
		res, err := service.closeCycle(ctx, mu)
		result = res
		return err
	})
	if err != nil {
		return err
	}
	if result != nil {
		service.logClose(result, "Auction ended at scheduled time")
	}
	return nil
}

// closeCycle finishes the current cycle, promotes the highest active bid and
// hands it to settlement with a payment deadline.
func (service *AuctionService) closeCycle(ctx context.Context, mu *mutation) (*shared.CloseResult, error) {
	c := mu.lot.Current()
	if !c.IsActive() {
		return nil, &shared.InvalidStateError{Op: "end auction", State: string(c.State)}
	}

	cycleBids, err := service.bidRepo.ListByLot(ctx, mu.lot.ID, c.Number)
	if err != nil {
		service.logger.Error().Err(err).Str("lot_id", mu.lot.ID.String()).Msg("Failed to list bids for close")
		return nil, err
	}

	winnerID, err := mu.lot.Finish(mu.now)
	if err != nil {
		return nil, err
	}
	mu.cancel(outbound.JobAuctionEnd)

	result := &shared.CloseResult{LotID: mu.lot.ID, Cycle: c.Number}
	winner := bid.Highest(cycleBids)
	if winnerID != nil && (winner == nil || winner.ID != *winnerID) {
		return nil, fmt.Errorf("lot %s cycle %d: ledger leader %s not found among active bids", mu.lot.ID, c.Number, winnerID)
	}

	for _, b := range cycleBids {
		if !b.IsActive() {
			continue
		}
		if winner != nil && b.ID == winner.ID {
			if err := b.Promote(mu.now); err != nil {
				return nil, err
			}
		} else if err := b.Supersede(mu.now); err != nil {
			return nil, err
		}
		mu.bids = append(mu.bids, b)
	}

	if winner == nil {
		mu.emit(outbound.EventTypeAuctionFinished, map[string]interface{}{
			"winner": false,
		})
		return result, nil
	}

	deadline := mu.now.Add(service.policy.PaymentDeadline)
	s := settlement.Open(mu.lot.ID, c.Number, winner.ID, winner.UserID, winner.Amount, deadline, mu.now)
	mu.lot.OpenSettlement(s.ID, mu.now)
	mu.settlements = append(mu.settlements, s)
	mu.schedule(outbound.Job{
		Kind:         outbound.JobPaymentDeadline,
		LotID:        mu.lot.ID,
		Cycle:        c.Number,
		SettlementID: &s.ID,
		FireAt:       deadline,
	})

	mu.emit(outbound.EventTypeAuctionFinished, map[string]interface{}{
		"winner":         true,
		"winning_bid_id": winner.ID,
		"winner_id":      winner.UserID,
		"final_price":    winner.Amount.String(),
	})
	mu.emit(outbound.EventTypeSettlementAwaitingPayment, map[string]interface{}{
		"settlement_id":    s.ID,
		"bid_id":           winner.ID,
		"user_id":          winner.UserID,
		"amount":           winner.Amount.String(),
		"payment_deadline": deadline,
	})

	result.WinningBidID = &winner.ID
	result.WinnerID = &winner.UserID
	result.FinalPrice = &winner.Amount
	result.PaymentDeadline = &deadline
	return result, nil
}

func (service *AuctionService) logClose(result *shared.CloseResult, msg string) {
	if result == nil {
		return
	}
	event := service.logger.Info().
		Str("lot_id", result.LotID.String()).
		Int("cycle", result.Cycle)
	if result.HasWinner() {
		event = event.
			Str("bid_id", result.WinningBidID.String()).
			Str("winner_id", result.WinnerID.String()).
			Str("final_price", result.FinalPrice.String()).
			Time("payment_deadline", *result.PaymentDeadline)
	} else {
		event = event.Bool("no_bids", true)
	}
	event.Msg(msg)
}

func (service *AuctionService) parseWindow(req inbound.StartAuctionRequest) (time.Time, time.Time, error) {
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		service.logger.Warn().Err(err).Str("start_time", req.StartTime).Msg("Invalid start time format")
		return time.Time{}, time.Time{}, shared.ErrInvalidTimeFormat
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		service.logger.Warn().Err(err).Str("end_time", req.EndTime).Msg("Invalid end time format")
		return time.Time{}, time.Time{}, shared.ErrInvalidTimeFormat
	}
	return startTime.UTC(), endTime.UTC(), nil
}

// isDomainError reports rejections that retrying cannot fix
func isDomainError(err error) bool {
	for _, target := range []error{
		shared.ErrInvalidState,
		shared.ErrNotFound,
		shared.ErrStaleSettlement,
		shared.ErrInvalidTimeRange,
		shared.ErrPermissionDenied,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
