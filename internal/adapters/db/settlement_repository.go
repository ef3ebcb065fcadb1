package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// SettlementRepository implements outbound.SettlementRepository
type SettlementRepository struct {
	conn *Connection
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(conn *Connection) *SettlementRepository {
	return &SettlementRepository{conn: conn}
}

const settlementColumns = `id, lot_id, cycle, bid_id, user_id, amount, deadline, status, default_reason, created_at, resolved_at`

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var (
		s          settlement.Settlement
		status     string
		reason     string
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID,
		&s.LotID,
		&s.Cycle,
		&s.BidID,
		&s.UserID,
		&s.Amount,
		&s.Deadline,
		&status,
		&reason,
		&s.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = settlement.Status(status)
	s.DefaultReason = settlement.DefaultReason(reason)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		s.ResolvedAt = &t
	}
	return &s, nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	return r.getOne(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
}

func (r *SettlementRepository) GetByBidID(ctx context.Context, bidID uuid.UUID) (*settlement.Settlement, error) {
	return r.getOne(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE bid_id = $1`, bidID)
}

func (r *SettlementRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*settlement.Settlement, error) {
	s, err := scanSettlement(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFound("settlement", id)
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return s, nil
}

func (r *SettlementRepository) ListByLot(ctx context.Context, lotID uuid.UUID) ([]*settlement.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE lot_id = $1 ORDER BY cycle ASC`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	settlements := []*settlement.Settlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settlements: %w", err)
	}
	return settlements, nil
}
