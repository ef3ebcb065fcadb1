package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// BidRepository implements outbound.BidRepository
type BidRepository struct {
	conn *Connection
}

// NewBidRepository creates a new bid repository
func NewBidRepository(conn *Connection) *BidRepository {
	return &BidRepository{conn: conn}
}

const bidColumns = `id, lot_id, cycle, user_id, amount, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBid(row rowScanner) (*bid.Bid, error) {
	var (
		b      bid.Bid
		status string
	)
	err := row.Scan(
		&b.ID,
		&b.LotID,
		&b.Cycle,
		&b.UserID,
		&b.Amount,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = bid.Status(status)
	return &b, nil
}

func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`

	b, err := scanBid(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFound("bid", id)
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

// ListByLot retrieves the bids of a lot in submission order; cycle 0 means every cycle
func (r *BidRepository) ListByLot(ctx context.Context, lotID uuid.UUID, cycle int) ([]*bid.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE lot_id = $1 AND ($2 = 0 OR cycle = $2)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, lotID, cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return bids, nil
}
