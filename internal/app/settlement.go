package app

import (
	"context"
	"errors"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SettlementService implements the settlement tracker and the escalation policy
type SettlementService struct {
	mutator    *LotMutator
	bidRepo    outbound.BidRepository
	settleRepo outbound.SettlementRepository
	policy     Policy
	logger     zerolog.Logger
}

type SettlementServiceParams struct {
	Mutator        *LotMutator
	BidRepo        outbound.BidRepository
	SettlementRepo outbound.SettlementRepository
	Policy         Policy
	Logger         zerolog.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(params SettlementServiceParams) *SettlementService {
	return &SettlementService{
		mutator:    params.Mutator,
		bidRepo:    params.BidRepo,
		settleRepo: params.SettlementRepo,
		policy:     params.Policy,
		logger:     params.Logger.With().Str("component", "settlement_service").Logger(),
	}
}

// RecordPaymentConfirmation marks the current winner as paid. A repeated
// confirmation of the same settlement is a no-op; a confirmation for a
// defaulted or superseded cycle is rejected as stale.
func (service *SettlementService) RecordPaymentConfirmation(ctx context.Context, req inbound.PaymentSignal) (*lot.Lot, error) {
	service.logger.Info().
		Str("lot_id", req.LotID.String()).
		Str("bid_id", req.BidID.String()).
		Msg("Payment confirmation received")

	if err := authorizeSignal(ctx); err != nil {
		return nil, err
	}

	updated, err := service.mutator.mutate(ctx, req.LotID, func(mu *mutation) error {
		s, b, err := service.resolveSignal(ctx, mu.lot, req.BidID)
		if err != nil {
			return err
		}
		switch s.Status {
		case settlement.StatusConfirmed:
			mu.noop = true
			return nil
		case settlement.StatusDefaulted:
			return &shared.StaleSettlementError{LotID: req.LotID, BidID: req.BidID}
		}

		if err := mu.lot.ConfirmPayment(mu.now); err != nil {
			return err
		}
		if err := s.Confirm(mu.now); err != nil {
			return err
		}
		if err := b.MarkPaid(mu.now); err != nil {
			return err
		}
		mu.settlements = append(mu.settlements, s)
		mu.bids = append(mu.bids, b)
		mu.cancel(outbound.JobPaymentDeadline)
		mu.emit(outbound.EventTypeSettlementConfirmed, map[string]interface{}{
			"settlement_id":   s.ID,
			"bid_id":          b.ID,
			"user_id":         b.UserID,
			"amount":          s.Amount.String(),
			"failed_attempts": mu.lot.FailedAttempts,
		})
		return nil
	})
	if err != nil {
		service.logger.Warn().Err(err).
			Str("lot_id", req.LotID.String()).
			Str("bid_id", req.BidID.String()).
			Msg("Payment confirmation rejected")
		return nil, err
	}

	service.logger.Info().
		Str("lot_id", updated.ID.String()).
		Str("bid_id", req.BidID.String()).
		Str("escalation", string(updated.Escalation)).
		Msg("Payment confirmed")
	return updated, nil
}

// RecordPaymentDefault applies a default signal from financial processing
func (service *SettlementService) RecordPaymentDefault(ctx context.Context, req inbound.PaymentSignal) (*lot.Lot, error) {
	service.logger.Info().
		Str("lot_id", req.LotID.String()).
		Str("bid_id", req.BidID.String()).
		Msg("Payment default received")

	if err := authorizeSignal(ctx); err != nil {
		return nil, err
	}

	updated, err := service.mutator.mutate(ctx, req.LotID, func(mu *mutation) error {
		s, b, err := service.resolveSignal(ctx, mu.lot, req.BidID)
		if err != nil {
			return err
		}
		switch s.Status {
		case settlement.StatusDefaulted:
			mu.noop = true
			return nil
		case settlement.StatusConfirmed:
			return &shared.InvalidStateError{Op: "record payment default", State: string(s.Status), Reason: "payment already confirmed"}
		}
		return service.applyDefault(mu, s, b, settlement.ReasonLedgerSignal)
	})
	if err != nil {
		service.logger.Warn().Err(err).
			Str("lot_id", req.LotID.String()).
			Str("bid_id", req.BidID.String()).
			Msg("Payment default rejected")
		return nil, err
	}
	service.logDefault(updated)
	return updated, nil
}

// MarkPaymentDefault defaults the current settlement on administrative request
func (service *SettlementService) MarkPaymentDefault(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error) {
	service.logger.Info().Str("lot_id", lotID.String()).Msg("Attempting to mark payment default")

	updated, err := service.mutator.mutate(ctx, lotID, func(mu *mutation) error {
		if err := authorizeLotCommand(ctx, mu.lot); err != nil {
			return err
		}
		if !mu.lot.AwaitingPayment() {
			return &shared.InvalidStateError{
				Op:     "mark payment default",
				State:  string(mu.lot.State()),
				Reason: "settlement is not awaiting payment",
			}
		}
		s, b, err := service.currentSettlement(ctx, mu.lot)
		if err != nil {
			return err
		}
		return service.applyDefault(mu, s, b, settlement.ReasonMarkedByAdmin)
	})
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", lotID.String()).Msg("Failed to mark payment default")
		return nil, err
	}
	service.logDefault(updated)
	return updated, nil
}

// ExpireDeadline defaults the settlement when its payment deadline fires. It
// does nothing once the settlement is resolved or no longer current.
func (service *SettlementService) ExpireDeadline(ctx context.Context, lotID, settlementID uuid.UUID) error {
	defaulted := false
	updated, err := service.mutator.mutate(ctx, lotID, func(mu *mutation) error {
		if !mu.lot.IsCurrentSettlement(settlementID) || !mu.lot.AwaitingPayment() {
			mu.noop = true
			return nil
		}
		s, b, err := service.currentSettlement(ctx, mu.lot)
		if err != nil {
			return err
		}
		if !s.IsAwaiting() {
			mu.noop = true
			return nil
		}
		defaulted = true
		return service.applyDefault(mu, s, b, settlement.ReasonDeadlineExpired)
	})
	if err != nil {
		return err
	}
	if defaulted {
		service.logDefault(updated)
	}
	return nil
}

// ResetFailedAttempts clears the failed-attempt counter after manual review
func (service *SettlementService) ResetFailedAttempts(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error) {
	service.logger.Info().Str("lot_id", lotID.String()).Msg("Attempting to reset failed attempts")

	updated, err := service.mutator.mutate(ctx, lotID, func(mu *mutation) error {
		if err := authorizeLotCommand(ctx, mu.lot); err != nil {
			return err
		}
		previous := mu.lot.FailedAttempts
		if err := mu.lot.ResetFailedAttempts(mu.now); err != nil {
			return err
		}
		mu.emit(outbound.EventTypeFailedAttemptsReset, map[string]interface{}{
			"previous_failed_attempts": previous,
			"escalation":               string(mu.lot.Escalation),
		})
		return nil
	})
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", lotID.String()).Msg("Failed to reset failed attempts")
		return nil, err
	}

	service.logger.Warn().
		Str("lot_id", updated.ID.String()).
		Str("escalation", string(updated.Escalation)).
		Msg("Failed attempts reset by administrative override")
	return updated, nil
}

// applyDefault moves the settlement and bid to defaulted and escalates the lot
func (service *SettlementService) applyDefault(mu *mutation, s *settlement.Settlement, b *bid.Bid, reason settlement.DefaultReason) error {
	escalation, err := mu.lot.RegisterDefault(service.policy.MaxFailedAttempts, mu.now)
	if err != nil {
		return err
	}
	if err := s.Default(reason, mu.now); err != nil {
		return err
	}
	if err := b.MarkDefaulted(mu.now); err != nil {
		return err
	}
	mu.settlements = append(mu.settlements, s)
	mu.bids = append(mu.bids, b)
	mu.cancel(outbound.JobPaymentDeadline)
	mu.emit(outbound.EventTypeSettlementDefaulted, map[string]interface{}{
		"settlement_id":   s.ID,
		"bid_id":          b.ID,
		"user_id":         b.UserID,
		"reason":          string(reason),
		"failed_attempts": mu.lot.FailedAttempts,
		"escalation":      string(escalation),
	})

	if escalation == lot.EscalationReassignable && service.policy.AutoReopen {
		service.reopen(mu)
	}
	return nil
}

// reopen schedules the next cycle of a reassignable lot
func (service *SettlementService) reopen(mu *mutation) {
	start := mu.now.Add(service.policy.ReopenDelay)
	end := start.Add(service.policy.ReopenDuration)
	c, err := mu.lot.Schedule(start, end, mu.now)
	if err != nil {
		service.logger.Warn().Err(err).Str("lot_id", mu.lot.ID.String()).Msg("Automatic reopen skipped")
		return
	}
	mu.schedule(outbound.Job{Kind: outbound.JobAuctionStart, LotID: mu.lot.ID, Cycle: c.Number, FireAt: start})
	mu.emit(outbound.EventTypeAuctionScheduled, map[string]interface{}{
		"start_time": start,
		"end_time":   end,
		"automatic":  true,
	})
}

// resolveSignal checks that a payment signal targets the winner of the lot's current cycle
func (service *SettlementService) resolveSignal(ctx context.Context, l *lot.Lot, bidID uuid.UUID) (*settlement.Settlement, *bid.Bid, error) {
	b, err := service.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	if b.LotID != l.ID {
		return nil, nil, shared.NewNotFound("bid", bidID)
	}

	c := l.Current()
	if b.Cycle != c.Number || c.SettlementID == nil {
		return nil, nil, &shared.StaleSettlementError{LotID: l.ID, BidID: bidID}
	}
	s, err := service.settleRepo.GetByID(ctx, *c.SettlementID)
	if err != nil {
		return nil, nil, err
	}
	if s.BidID != b.ID {
		return nil, nil, &shared.StaleSettlementError{LotID: l.ID, BidID: bidID}
	}
	return s, b, nil
}

func (service *SettlementService) currentSettlement(ctx context.Context, l *lot.Lot) (*settlement.Settlement, *bid.Bid, error) {
	c := l.Current()
	if c.SettlementID == nil {
		return nil, nil, &shared.InvalidStateError{Op: "resolve settlement", State: string(c.State), Reason: "cycle has no settlement"}
	}
	s, err := service.settleRepo.GetByID(ctx, *c.SettlementID)
	if err != nil {
		return nil, nil, err
	}
	b, err := service.bidRepo.GetByID(ctx, s.BidID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			service.logger.Error().Err(err).Str("settlement_id", s.ID.String()).Msg("Winning bid missing for settlement")
		}
		return nil, nil, err
	}
	return s, b, nil
}

func (service *SettlementService) logDefault(l *lot.Lot) {
	event := service.logger.Info()
	if l.Escalation == lot.EscalationClosedUnsold {
		event = service.logger.Warn()
	}
	event.
		Str("lot_id", l.ID.String()).
		Int("cycle", l.Current().Number).
		Int("failed_attempts", l.FailedAttempts).
		Str("escalation", string(l.Escalation)).
		Msg("Payment defaulted")
}
