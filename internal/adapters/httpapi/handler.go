package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/inbound"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler serves the lot REST API
type Handler struct {
	auctions    inbound.AuctionService
	bids        inbound.BidService
	settlements inbound.SettlementService
	logger      zerolog.Logger
}

type HandlerParams struct {
	AuctionService    inbound.AuctionService
	BidService        inbound.BidService
	SettlementService inbound.SettlementService
	Logger            zerolog.Logger
}

func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		auctions:    params.AuctionService,
		bids:        params.BidService,
		settlements: params.SettlementService,
		logger:      params.Logger.With().Str("component", "http_handler").Logger(),
	}
}

type windowRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type bidRequest struct {
	UserID *uuid.UUID      `json:"user_id,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	BidID uuid.UUID `json:"bid_id"`
}

func lotIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "lotID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid lot id", shared.ErrInvalidRequest)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidRequest, err)
	}
	return nil
}

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	view, err := h.auctions.GetLot(r.Context(), lotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	cycle := 0
	if raw := r.URL.Query().Get("cycle"); raw != "" {
		cycle, err = strconv.Atoi(raw)
		if err != nil || cycle < 0 {
			writeDomainError(w, r, fmt.Errorf("%w: invalid cycle", shared.ErrInvalidRequest))
			return
		}
	}
	bids, err := h.bids.ListBids(r.Context(), lotID, cycle)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, bids)
}

func (h *Handler) getHighestBid(w http.ResponseWriter, r *http.Request) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	highest, err := h.bids.HighestActiveBid(r.Context(), lotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, highest)
}

func (h *Handler) submitBid(w http.ResponseWriter, r *http.Request) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	userID := uuid.Nil
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		userID = actor.ID
	}
	if req.UserID != nil {
		userID = *req.UserID
	}
	placed, err := h.bids.SubmitBid(r.Context(), inbound.SubmitBidRequest{
		LotID:    lotID,
		UserID:   userID,
		ClientID: requestIDFromContext(r.Context()),
		Amount:   req.Amount,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, placed)
}

func (h *Handler) startAuction(w http.ResponseWriter, r *http.Request) {
	h.window(w, r, h.auctions.StartAuction)
}

func (h *Handler) scheduleAuction(w http.ResponseWriter, r *http.Request) {
	h.window(w, r, h.auctions.ScheduleAuction)
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req inbound.StartAuctionRequest) (*lot.Lot, error)) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req windowRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	l, err := op(r.Context(), inbound.StartAuctionRequest{LotID: lotID, StartTime: req.StartTime, EndTime: req.EndTime})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, l)
}

func (h *Handler) forceEndAuction(w http.ResponseWriter, r *http.Request) {
	h.lotCommand(w, r, h.auctions.ForceEndAuction)
}

func (h *Handler) markPaymentDefault(w http.ResponseWriter, r *http.Request) {
	h.lotCommand(w, r, h.settlements.MarkPaymentDefault)
}

func (h *Handler) resetFailedAttempts(w http.ResponseWriter, r *http.Request) {
	h.lotCommand(w, r, h.settlements.ResetFailedAttempts)
}

func (h *Handler) lotCommand(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, lotID uuid.UUID) (*lot.Lot, error)) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	l, err := op(r.Context(), lotID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, l)
}

func (h *Handler) paymentConfirmed(w http.ResponseWriter, r *http.Request) {
	h.paymentSignal(w, r, h.settlements.RecordPaymentConfirmation)
}

func (h *Handler) paymentDefaulted(w http.ResponseWriter, r *http.Request) {
	h.paymentSignal(w, r, h.settlements.RecordPaymentDefault)
}

func (h *Handler) paymentSignal(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req inbound.PaymentSignal) (*lot.Lot, error)) {
	lotID, err := lotIDParam(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.BidID == uuid.Nil {
		writeDomainError(w, r, fmt.Errorf("%w: bid_id is required", shared.ErrInvalidRequest))
		return
	}
	l, err := op(r.Context(), inbound.PaymentSignal{LotID: lotID, BidID: req.BidID})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, l)
}
