package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// LotRepository implements outbound.LotRepository
type LotRepository struct {
	conn *Connection
}

// NewLotRepository creates a new lot repository
func NewLotRepository(conn *Connection) *LotRepository {
	return &LotRepository{conn: conn}
}

func (r *LotRepository) Create(ctx context.Context, l *lot.Lot) error {
	cycles, err := json.Marshal(l.Cycles)
	if err != nil {
		return fmt.Errorf("failed to marshal cycles: %w", err)
	}

	query := `
		INSERT INTO lots (id, project_id, owner_id, base_price, active, failed_attempts, escalation, cycles, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.conn.GetDB().ExecContext(ctx, query,
		l.ID,
		nullUUID(l.ProjectID),
		nullUUID(l.OwnerID),
		l.BasePrice,
		l.Active,
		l.FailedAttempts,
		string(l.Escalation),
		cycles,
		l.Version,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrConcurrentUpdate
		}
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

func (r *LotRepository) GetByID(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	query := `
		SELECT id, project_id, owner_id, base_price, active, failed_attempts, escalation, cycles, version, created_at, updated_at
		FROM lots
		WHERE id = $1
	`

	var (
		l          lot.Lot
		projectID  uuid.NullUUID
		ownerID    uuid.NullUUID
		escalation string
		cycles     []byte
	)
	err := r.conn.GetDB().QueryRowContext(ctx, query, id).Scan(
		&l.ID,
		&projectID,
		&ownerID,
		&l.BasePrice,
		&l.Active,
		&l.FailedAttempts,
		&escalation,
		&cycles,
		&l.Version,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFound("lot", id)
		}
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	if err := json.Unmarshal(cycles, &l.Cycles); err != nil {
		return nil, fmt.Errorf("failed to decode cycles of lot %s: %w", id, err)
	}
	l.ProjectID = uuidPtr(projectID)
	l.OwnerID = uuidPtr(ownerID)
	l.Escalation = lot.Escalation(escalation)
	return &l, nil
}

/*
Save writes a lot change with optimistic concurrency control:
 1. Update the lot only if its version still matches the one it was read with
 2. Fail with ErrConcurrentUpdate if another writer got there first
 3. Upsert the bids and settlements touched by the command in the same transaction
*/
func (r *LotRepository) Save(ctx context.Context, change outbound.LotChange) error {
	l := change.Lot
	cycles, err := json.Marshal(l.Cycles)
	if err != nil {
		return fmt.Errorf("failed to marshal cycles: %w", err)
	}

	err = r.conn.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE lots
			SET project_id = $3, owner_id = $4, base_price = $5, active = $6, failed_attempts = $7,
			    escalation = $8, cycles = $9, updated_at = $10, version = version + 1
			WHERE id = $1 AND version = $2
		`
		result, err := tx.ExecContext(ctx, query,
			l.ID,
			l.Version,
			nullUUID(l.ProjectID),
			nullUUID(l.OwnerID),
			l.BasePrice,
			l.Active,
			l.FailedAttempts,
			string(l.Escalation),
			cycles,
			l.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update lot: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return shared.ErrConcurrentUpdate
		}

		for _, b := range change.Bids {
			if err := upsertBid(ctx, tx, b); err != nil {
				return err
			}
		}
		for _, s := range change.Settlements {
			if err := upsertSettlement(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Version++
	return nil
}

func upsertBid(ctx context.Context, tx *sql.Tx, b *bid.Bid) error {
	query := `
		INSERT INTO bids (id, lot_id, cycle, user_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		b.ID,
		b.LotID,
		b.Cycle,
		b.UserID,
		b.Amount,
		string(b.Status),
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save bid %s: %w", b.ID, err)
	}
	return nil
}

func upsertSettlement(ctx context.Context, tx *sql.Tx, s *settlement.Settlement) error {
	query := `
		INSERT INTO settlements (id, lot_id, cycle, bid_id, user_id, amount, deadline, status, default_reason, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, default_reason = EXCLUDED.default_reason, resolved_at = EXCLUDED.resolved_at
	`
	var resolvedAt sql.NullTime
	if s.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *s.ResolvedAt, Valid: true}
	}
	_, err := tx.ExecContext(ctx, query,
		s.ID,
		s.LotID,
		s.Cycle,
		s.BidID,
		s.UserID,
		s.Amount,
		s.Deadline,
		string(s.Status),
		string(s.DefaultReason),
		s.CreatedAt,
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement %s: %w", s.ID, err)
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}
