package lot

import (
	"fmt"
	"time"

	"lot-auction-service/internal/domain/auction"
	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escalation is the settlement outcome the lot carries across cycles
type Escalation string

const (
	EscalationNone            Escalation = ""
	EscalationAwaitingPayment Escalation = "awaiting_payment"
	EscalationConfirmed       Escalation = "confirmed"
	EscalationReassignable    Escalation = "reassignable"
	EscalationClosedUnsold    Escalation = "closed_unsold"
)

// Lot is the sellable unit. Its history is an ordered list of auction cycles;
// only the last one can change.
type Lot struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      *uuid.UUID      `json:"project_id,omitempty"`
	OwnerID        *uuid.UUID      `json:"owner_id,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	Active         bool            `json:"active"`
	FailedAttempts int             `json:"failed_attempts"`
	Escalation     Escalation      `json:"escalation,omitempty"`
	Cycles         []auction.Cycle `json:"cycles"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// New creates a lot in state pending with an empty first cycle
func New(id uuid.UUID, projectID, ownerID *uuid.UUID, basePrice decimal.Decimal, active bool, at time.Time) *Lot {
	return &Lot{
		ID:        id,
		ProjectID: projectID,
		OwnerID:   ownerID,
		BasePrice: basePrice,
		Active:    active,
		Cycles:    []auction.Cycle{{Number: 1, State: auction.StatePending}},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Current returns the latest auction cycle
func (l *Lot) Current() *auction.Cycle {
	return &l.Cycles[len(l.Cycles)-1]
}

// State returns the auction state of the current cycle
func (l *Lot) State() auction.State {
	return l.Current().State
}

// Cycle returns the cycle with the given number, or nil
func (l *Lot) Cycle(number int) *auction.Cycle {
	if number < 1 || number > len(l.Cycles) {
		return nil
	}
	return &l.Cycles[number-1]
}

// HasStarted returns true once any cycle has been opened for bidding
func (l *Lot) HasStarted() bool {
	for i := range l.Cycles {
		if l.Cycles[i].StartedAt != nil {
			return true
		}
	}
	return false
}

// ApplyCatalog refreshes catalog-owned attributes. Project and base price are
// frozen once the first auction has started.
func (l *Lot) ApplyCatalog(projectID, ownerID *uuid.UUID, basePrice decimal.Decimal, active bool, at time.Time) {
	if !l.HasStarted() {
		l.ProjectID = projectID
		l.BasePrice = basePrice
	}
	l.OwnerID = ownerID
	l.Active = active
	l.UpdatedAt = at
}

// Schedule records the window of the next cycle without opening it
func (l *Lot) Schedule(start, end, now time.Time) (*auction.Cycle, error) {
	c, err := l.prepareCycle("schedule auction", start, end, now)
	if err != nil {
		return nil, err
	}
	l.UpdatedAt = now
	return c, nil
}

// Start records the window and opens the next cycle for bidding
func (l *Lot) Start(start, end, now time.Time) (*auction.Cycle, error) {
	c, err := l.prepareCycle("start auction", start, end, now)
	if err != nil {
		return nil, err
	}
	c.Activate(now)
	l.UpdatedAt = now
	return c, nil
}

// Activate opens a scheduled cycle. It reports false when the cycle is no
// longer the pending current one, which makes repeated start events harmless.
func (l *Lot) Activate(cycle int, now time.Time) bool {
	c := l.Current()
	if c.Number != cycle || !c.IsPending() || !c.HasWindow() {
		return false
	}
	c.Activate(now)
	l.UpdatedAt = now
	return true
}

func (l *Lot) prepareCycle(op string, start, end, now time.Time) (*auction.Cycle, error) {
	if !l.Active {
		return nil, &shared.InvalidStateError{Op: op, State: string(l.State()), Reason: "lot is not active"}
	}
	if l.ProjectID == nil {
		return nil, &shared.InvalidStateError{Op: op, State: string(l.State()), Reason: "lot has no project"}
	}

	next := false
	c := l.Current()
	switch c.State {
	case auction.StatePending:
	case auction.StateFinished:
		switch l.Escalation {
		case EscalationReassignable:
			next = true
		case EscalationClosedUnsold:
			return nil, &shared.InvalidStateError{
				Op:     op,
				State:  string(c.State),
				Reason: fmt.Sprintf("lot is closed_unsold after %d failed payments, failed attempts must be reset first", l.FailedAttempts),
			}
		default:
			return nil, &shared.InvalidStateError{Op: op, State: string(c.State)}
		}
	default:
		return nil, &shared.InvalidStateError{Op: op, State: string(c.State)}
	}

	if err := auction.ValidateWindow(start, end); err != nil {
		return nil, err
	}
	if !end.After(now) {
		return nil, shared.ErrInvalidTimeRange
	}

	if next {
		l.Cycles = append(l.Cycles, auction.Cycle{Number: c.Number + 1, State: auction.StatePending})
		l.Escalation = EscalationNone
		c = l.Current()
	}
	if err := c.SetWindow(start, end); err != nil {
		return nil, err
	}
	return c, nil
}

// AcceptsBidAt checks the current cycle is open at t
func (l *Lot) AcceptsBidAt(t time.Time) error {
	return l.Current().AcceptsBidAt(t)
}

// MinimumBid returns the amount a new bid must strictly exceed
func (l *Lot) MinimumBid() decimal.Decimal {
	return l.Current().MinimumBid(l.BasePrice)
}

// RecordBid registers an accepted bid on the current cycle
func (l *Lot) RecordBid(bidID uuid.UUID, amount decimal.Decimal, at time.Time) {
	l.Current().UpdateCurrentPrice(bidID, amount)
	l.UpdatedAt = at
}

// Finish closes the current cycle and returns the winning bid id, if any.
// A cycle without a winner leaves the lot reassignable with its failed-attempt
// counter untouched.
func (l *Lot) Finish(now time.Time) (*uuid.UUID, error) {
	c := l.Current()
	if !c.IsActive() {
		return nil, &shared.InvalidStateError{Op: "end auction", State: string(c.State)}
	}
	l.UpdatedAt = now
	winner := c.EndAuction(now)
	if winner == nil {
		l.Escalation = EscalationReassignable
	}
	return winner, nil
}

// OpenSettlement attaches the settlement of the current cycle's winner
func (l *Lot) OpenSettlement(settlementID uuid.UUID, at time.Time) {
	l.Current().SettlementID = &settlementID
	l.Escalation = EscalationAwaitingPayment
	l.UpdatedAt = at
}

// IsCurrentSettlement returns true if id is the settlement of the current cycle
func (l *Lot) IsCurrentSettlement(id uuid.UUID) bool {
	c := l.Current()
	return c.SettlementID != nil && *c.SettlementID == id
}

// AwaitingPayment returns true while the current winner has not paid nor defaulted
func (l *Lot) AwaitingPayment() bool {
	return l.Escalation == EscalationAwaitingPayment
}

// ConfirmPayment records the successful settlement of the current cycle
func (l *Lot) ConfirmPayment(at time.Time) error {
	if !l.AwaitingPayment() {
		return &shared.InvalidStateError{Op: "confirm payment", State: string(l.Escalation), Reason: "settlement is not awaiting payment"}
	}
	l.Escalation = EscalationConfirmed
	l.UpdatedAt = at
	return nil
}

// RegisterDefault increments the failed-attempt counter and escalates the lot
func (l *Lot) RegisterDefault(threshold int, at time.Time) (Escalation, error) {
	if !l.AwaitingPayment() {
		return l.Escalation, &shared.InvalidStateError{Op: "mark payment default", State: string(l.Escalation), Reason: "settlement is not awaiting payment"}
	}
	l.FailedAttempts++
	if l.FailedAttempts >= threshold {
		l.Escalation = EscalationClosedUnsold
	} else {
		l.Escalation = EscalationReassignable
	}
	l.UpdatedAt = at
	return l.Escalation, nil
}

// ResetFailedAttempts clears the counter. A closed_unsold lot becomes reassignable.
func (l *Lot) ResetFailedAttempts(at time.Time) error {
	c := l.Current()
	if c.IsActive() {
		return &shared.InvalidStateError{Op: "reset failed attempts", State: string(c.State), Reason: "auction is in progress"}
	}
	if l.AwaitingPayment() {
		return &shared.InvalidStateError{Op: "reset failed attempts", State: string(l.Escalation), Reason: "settlement is awaiting payment"}
	}
	l.FailedAttempts = 0
	if c.IsEnded() && l.Escalation == EscalationClosedUnsold {
		l.Escalation = EscalationReassignable
	}
	l.UpdatedAt = at
	return nil
}

// Clone returns a deep copy
func (l *Lot) Clone() *Lot {
	c := *l
	c.Cycles = append([]auction.Cycle(nil), l.Cycles...)
	return &c
}
