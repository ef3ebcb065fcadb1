package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the state of one settlement cycle
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusDefaulted       Status = "defaulted"
)

// DefaultReason records what triggered a default
type DefaultReason string

const (
	ReasonDeadlineExpired DefaultReason = "deadline_expired"
	ReasonMarkedByAdmin   DefaultReason = "marked_by_admin"
	ReasonLedgerSignal    DefaultReason = "ledger_signal"
)

// Settlement tracks payment collection for the winning bid of one auction cycle
type Settlement struct {
	ID            uuid.UUID       `json:"id"`
	LotID         uuid.UUID       `json:"lot_id"`
	Cycle         int             `json:"cycle"`
	BidID         uuid.UUID       `json:"bid_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Deadline      time.Time       `json:"deadline"`
	Status        Status          `json:"status"`
	DefaultReason DefaultReason   `json:"default_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// Open starts a settlement cycle for a winning bid
func Open(lotID uuid.UUID, cycle int, bidID, userID uuid.UUID, amount decimal.Decimal, deadline, at time.Time) *Settlement {
	return &Settlement{
		ID:        uuid.New(),
		LotID:     lotID,
		Cycle:     cycle,
		BidID:     bidID,
		UserID:    userID,
		Amount:    amount,
		Deadline:  deadline,
		Status:    StatusAwaitingPayment,
		CreatedAt: at,
	}
}

// IsAwaiting returns true while payment is still expected
func (s *Settlement) IsAwaiting() bool {
	return s.Status == StatusAwaitingPayment
}

// Confirm records the payment confirmation
func (s *Settlement) Confirm(at time.Time) error {
	if !s.IsAwaiting() {
		return fmt.Errorf("settlement %s is %s", s.ID, s.Status)
	}
	s.Status = StatusConfirmed
	s.ResolvedAt = &at
	return nil
}

// Default records non-payment
func (s *Settlement) Default(reason DefaultReason, at time.Time) error {
	if !s.IsAwaiting() {
		return fmt.Errorf("settlement %s is %s", s.ID, s.Status)
	}
	s.Status = StatusDefaulted
	s.DefaultReason = reason
	s.ResolvedAt = &at
	return nil
}

// Clone returns a copy safe to hand out of a repository
func (s *Settlement) Clone() *Settlement {
	c := *s
	return &c
}
