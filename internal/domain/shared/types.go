package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CloseResult represents the outcome of finishing an auction cycle
type CloseResult struct {
	LotID           uuid.UUID
	Cycle           int
	WinningBidID    *uuid.UUID
	WinnerID        *uuid.UUID
	FinalPrice      *decimal.Decimal
	PaymentDeadline *time.Time
}

// HasWinner reports whether the cycle closed with a qualifying bid
func (r CloseResult) HasWinner() bool {
	return r.WinningBidID != nil
}
