package auction

import (
	"time"

	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State represents the auction state of one cycle
type State string

const (
	StatePending  State = "pending"
	StateActive   State = "active"
	StateFinished State = "finished"
)

// Cycle is one pending -> active -> finished traversal of a lot, with its own bid slice
type Cycle struct {
	Number       int             `json:"number"`
	State        State           `json:"state"`
	StartTime    *time.Time      `json:"start_time,omitempty"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	HighestBidID *uuid.UUID      `json:"highest_bid_id,omitempty"`
	BidCount     int             `json:"bid_count"`
	WinningBidID *uuid.UUID      `json:"winning_bid_id,omitempty"`
	SettlementID *uuid.UUID      `json:"settlement_id,omitempty"`
}

// ValidateWindow checks end > start
func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return shared.ErrInvalidTimeRange
	}
	return nil
}

// IsPending returns true if the cycle has not opened yet
func (c *Cycle) IsPending() bool {
	return c.State == StatePending
}

// IsActive returns true if the cycle is open for bidding
func (c *Cycle) IsActive() bool {
	return c.State == StateActive
}

// IsEnded returns true if the cycle has finished
func (c *Cycle) IsEnded() bool {
	return c.State == StateFinished
}

// HasWindow returns true once start and end times are set
func (c *Cycle) HasWindow() bool {
	return c.StartTime != nil && c.EndTime != nil
}

// SetWindow records the auction window of a pending cycle
func (c *Cycle) SetWindow(start, end time.Time) error {
	if err := ValidateWindow(start, end); err != nil {
		return err
	}
	c.StartTime = &start
	c.EndTime = &end
	return nil
}

// Activate opens the cycle for bidding
func (c *Cycle) Activate(at time.Time) {
	c.State = StateActive
	c.StartedAt = &at
}

// AcceptsBidAt checks the cycle is active and t falls in [start, end)
func (c *Cycle) AcceptsBidAt(t time.Time) error {
	switch c.State {
	case StatePending:
		return &shared.AuctionNotActiveError{State: string(c.State), Reason: "auction has not started"}
	case StateFinished:
		return &shared.AuctionNotActiveError{State: string(c.State), Reason: "auction already closed"}
	}
	if c.StartTime != nil && t.Before(*c.StartTime) {
		return &shared.AuctionNotActiveError{State: string(c.State), Reason: "auction window has not opened yet"}
	}
	if c.EndTime != nil && !t.Before(*c.EndTime) {
		return &shared.AuctionNotActiveError{State: string(c.State), Reason: "auction window has closed"}
	}
	return nil
}

// MinimumBid returns the amount a new bid must strictly exceed
func (c *Cycle) MinimumBid(basePrice decimal.Decimal) decimal.Decimal {
	if c.HighestBidID == nil {
		return basePrice
	}
	return c.CurrentPrice
}

// UpdateCurrentPrice records a newly accepted leading bid
func (c *Cycle) UpdateCurrentPrice(bidID uuid.UUID, amount decimal.Decimal) {
	if c.HighestBidID == nil || amount.GreaterThan(c.CurrentPrice) {
		c.HighestBidID = &bidID
		c.CurrentPrice = amount
	}
	c.BidCount++
}

// EndAuction finishes the cycle and returns the winning bid id, if any
func (c *Cycle) EndAuction(at time.Time) *uuid.UUID {
	c.State = StateFinished
	c.FinishedAt = &at
	if c.HighestBidID != nil {
		winner := *c.HighestBidID
		c.WinningBidID = &winner
	}
	return c.WinningBidID
}
