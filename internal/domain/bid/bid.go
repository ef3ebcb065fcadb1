package bid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of a bid
type Status string

const (
	StatusActive                Status = "active"
	StatusWinningPendingPayment Status = "winning_pending_payment"
	StatusWinningPaid           Status = "winning_paid"
	StatusWinningDefaulted      Status = "winning_defaulted"
	StatusSuperseded            Status = "superseded"
)

// Bid represents a bid on one auction cycle of a lot
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	LotID     uuid.UUID       `json:"lot_id"`
	Cycle     int             `json:"cycle"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates an accepted, active bid
func New(lotID uuid.UUID, cycle int, userID uuid.UUID, amount decimal.Decimal, at time.Time) *Bid {
	return &Bid{
		ID:        uuid.New(),
		LotID:     lotID,
		Cycle:     cycle,
		UserID:    userID,
		Amount:    amount,
		Status:    StatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// IsActive returns true while the bid is a live candidate of an open cycle
func (b *Bid) IsActive() bool {
	return b.Status == StatusActive
}

// IsFinal returns true once the bid can no longer change state
func (b *Bid) IsFinal() bool {
	switch b.Status {
	case StatusWinningPaid, StatusWinningDefaulted, StatusSuperseded:
		return true
	}
	return false
}

// Promote marks the bid as the cycle winner awaiting payment
func (b *Bid) Promote(at time.Time) error {
	return b.transition(StatusActive, StatusWinningPendingPayment, at)
}

// Supersede marks a losing bid at auction close
func (b *Bid) Supersede(at time.Time) error {
	return b.transition(StatusActive, StatusSuperseded, at)
}

// MarkPaid settles the winning bid
func (b *Bid) MarkPaid(at time.Time) error {
	return b.transition(StatusWinningPendingPayment, StatusWinningPaid, at)
}

// MarkDefaulted records non-payment of the winning bid
func (b *Bid) MarkDefaulted(at time.Time) error {
	return b.transition(StatusWinningPendingPayment, StatusWinningDefaulted, at)
}

func (b *Bid) transition(from, to Status, at time.Time) error {
	if b.Status != from {
		return fmt.Errorf("bid %s: cannot move from %s to %s", b.ID, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

// Clone returns a copy safe to hand out of a repository
func (b *Bid) Clone() *Bid {
	c := *b
	return &c
}

// Highest returns the highest active bid, earliest first on equal amounts.
// Ties cannot be accepted by the ledger; the ordering only keeps the result deterministic.
func Highest(bids []*Bid) *Bid {
	var best *Bid
	for _, b := range bids {
		if !b.IsActive() {
			continue
		}
		if best == nil ||
			b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	return best
}
