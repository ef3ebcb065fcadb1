package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// CatalogReader reads lot catalog entries maintained by catalog management
type CatalogReader struct {
	conn *Connection
}

// NewCatalogReader creates a new catalog reader
func NewCatalogReader(conn *Connection) *CatalogReader {
	return &CatalogReader{conn: conn}
}

// GetLotCatalogEntry implements outbound.Catalog
func (r *CatalogReader) GetLotCatalogEntry(ctx context.Context, lotID uuid.UUID) (*outbound.CatalogEntry, error) {
	query := `
		SELECT id, project_id, owner_id, base_price, active
		FROM lot_catalog
		WHERE id = $1
	`

	var (
		entry     outbound.CatalogEntry
		projectID uuid.NullUUID
		ownerID   uuid.NullUUID
	)
	err := r.conn.GetDB().QueryRowContext(ctx, query, lotID).Scan(
		&entry.LotID,
		&projectID,
		&ownerID,
		&entry.BasePrice,
		&entry.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFound("lot", lotID)
		}
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}
	entry.ProjectID = uuidPtr(projectID)
	entry.OwnerID = uuidPtr(ownerID)
	return &entry, nil
}
