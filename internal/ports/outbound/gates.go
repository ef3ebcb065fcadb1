package outbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogEntry is the read-only view of a lot owned by catalog management
type CatalogEntry struct {
	LotID     uuid.UUID       `json:"lot_id"`
	ProjectID *uuid.UUID      `json:"project_id,omitempty"`
	OwnerID   *uuid.UUID      `json:"owner_id,omitempty"`
	BasePrice decimal.Decimal `json:"base_price"`
	Active    bool            `json:"active"`
}

// Catalog looks up lots managed outside the engine
type Catalog interface {
	// GetLotCatalogEntry returns the catalog entry of a lot, or a shared.NotFoundError
	GetLotCatalogEntry(ctx context.Context, lotID uuid.UUID) (*CatalogEntry, error)
}

// EligibilityGate answers whether a user may bid on a project's lots
type EligibilityGate interface {
	CheckEligibility(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
}

// LotLocker serializes every mutation of a single lot
type LotLocker interface {
	// Lock blocks until the lot is owned by the caller or ctx is done
	Lock(ctx context.Context, lotID uuid.UUID) (unlock func(), err error)
}
