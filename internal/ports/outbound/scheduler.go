package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobKind names the time-based transition a job triggers
type JobKind string

const (
	JobAuctionStart    JobKind = "auction_start"
	JobAuctionEnd      JobKind = "auction_end"
	JobPaymentDeadline JobKind = "payment_deadline"
)

// Job is one deferred transition of one lot
type Job struct {
	Kind         JobKind    `json:"kind"`
	LotID        uuid.UUID  `json:"lot_id"`
	Cycle        int        `json:"cycle"`
	SettlementID *uuid.UUID `json:"settlement_id,omitempty"`
	FireAt       time.Time  `json:"fire_at"`
}

// Key identifies the timer slot of a job. A lot has at most one timer per kind.
func (j Job) Key() string {
	return JobKey(j.Kind, j.LotID)
}

// JobKey builds the timer slot key for a kind and lot
func JobKey(kind JobKind, lotID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", kind, lotID)
}

// Scheduler arms and disarms deferred transitions
type Scheduler interface {
	// Schedule arms job, replacing any job in the same slot
	Schedule(ctx context.Context, job Job) error

	// Cancel disarms the slot of kind for a lot; cancelling an empty slot is not an error
	Cancel(ctx context.Context, kind JobKind, lotID uuid.UUID) error
}

// JobHandler executes a fired job. Delivery is at-least-once, so handlers must be idempotent.
type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

// JobStore persists armed jobs so timers survive a restart
type JobStore interface {
	Put(ctx context.Context, job Job) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Job, error)
}
