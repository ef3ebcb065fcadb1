package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain-specific errors
var (
	// Lifecycle errors
	ErrInvalidState       = errors.New("operation not valid for current lifecycle state")
	ErrInvalidTimeRange   = errors.New("end time must be after start time")
	ErrAuctionNotActive   = errors.New("auction is not accepting bids")
	ErrStaleSettlement    = errors.New("settlement signal refers to a superseded cycle")
	ErrConcurrentUpdate   = errors.New("lot was modified concurrently")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")
	ErrNoBidsFound        = errors.New("no active bids found")
	ErrCatalogUnavailable = errors.New("lot catalog unavailable")

	// Bid errors
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrInvalidAmount = errors.New("bid amount must be greater than 0")
	ErrNotEligible   = errors.New("user is not eligible to bid on this project")

	// Validation errors
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidRequest    = errors.New("invalid request")

	// WebSocket message validation errors
	ErrMessageTypeRequired = errors.New("message type is required")
	ErrLotIDRequired       = errors.New("lot_id is required")
	ErrUnknownMessageType  = errors.New("unknown message type")
)

// InvalidStateError reports a command rejected by the lot lifecycle
type InvalidStateError struct {
	Op     string
	State  string
	Reason string
}

func (e *InvalidStateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("cannot %s: lot is %s", e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// AuctionNotActiveError reports a bid submitted outside the open auction window
type AuctionNotActiveError struct {
	State  string
	Reason string
}

func (e *AuctionNotActiveError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("auction is %s", e.State)
}

func (e *AuctionNotActiveError) Unwrap() error { return ErrAuctionNotActive }

// BidTooLowError carries the amount a new bid has to exceed
type BidTooLowError struct {
	Amount  decimal.Decimal
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must exceed %s", e.Minimum.String())
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// NotEligibleError is returned when the eligibility gate refuses a bidder
type NotEligibleError struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("user %s is not eligible to bid on project %s", e.UserID, e.ProjectID)
}

func (e *NotEligibleError) Unwrap() error { return ErrNotEligible }

// NotFoundError reports an unknown lot, bid or settlement id
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StaleSettlementError rejects a payment signal that no longer matches the lot's current settlement
type StaleSettlementError struct {
	LotID uuid.UUID
	BidID uuid.UUID
}

func (e *StaleSettlementError) Error() string {
	return fmt.Sprintf("bid %s is not the awaiting winner of lot %s", e.BidID, e.LotID)
}

func (e *StaleSettlementError) Unwrap() error { return ErrStaleSettlement }

// NewNotFound builds a NotFoundError for an id
func NewNotFound(kind string, id uuid.UUID) error {
	return &NotFoundError{Kind: kind, ID: id.String()}
}

// ErrorCode returns a stable machine-readable code for err
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrAuctionNotActive):
		return "auction_not_active"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrStaleSettlement):
		return "stale_settlement"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidTimeRange):
		return "invalid_time_range"
	case errors.Is(err, ErrInvalidTimeFormat), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMessageTypeRequired), errors.Is(err, ErrLotIDRequired), errors.Is(err, ErrUnknownMessageType):
		return "invalid_request"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoBidsFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	default:
		return "internal_error"
	}
}
