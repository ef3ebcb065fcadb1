package memory

import (
	"context"
	"testing"
	"time"

	"lot-auction-service/internal/domain/bid"
	"lot-auction-service/internal/domain/lot"
	"lot-auction-service/internal/domain/settlement"
	"lot-auction-service/internal/domain/shared"
	"lot-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLot() *lot.Lot {
	return lot.New(uuid.New(), nil, nil, decimal.NewFromInt(1000), true, t0)
}

func TestCreateAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	l := newLot()

	require.NoError(t, store.Create(ctx, l))
	assert.ErrorIs(t, store.Create(ctx, l), shared.ErrConcurrentUpdate)

	got, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)

	// callers get copies
	got.FailedAttempts = 7
	again, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, again.FailedAttempts)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	l := newLot()
	require.NoError(t, store.Create(ctx, l))

	first, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	second, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, outbound.LotChange{Lot: first}))
	assert.Equal(t, l.Version+1, first.Version)
	assert.ErrorIs(t, store.Save(ctx, outbound.LotChange{Lot: second}), shared.ErrConcurrentUpdate)

	assert.ErrorIs(t, store.Save(ctx, outbound.LotChange{Lot: newLot()}), shared.ErrNotFound)
}

func TestSaveStoresBidsAndSettlements(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	l := newLot()
	require.NoError(t, store.Create(ctx, l))

	userID := uuid.New()
	early := bid.New(l.ID, 1, userID, decimal.NewFromInt(1100), t0)
	late := bid.New(l.ID, 2, userID, decimal.NewFromInt(1200), t0.Add(time.Minute))
	s := settlement.Open(l.ID, 1, early.ID, userID, early.Amount, t0.Add(time.Hour), t0)

	require.NoError(t, store.Save(ctx, outbound.LotChange{Lot: l, Bids: []*bid.Bid{late, early}, Settlements: []*settlement.Settlement{s}}))

	all, err := store.Bids().ListByLot(ctx, l.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, early.ID, all[0].ID)

	cycleTwo, err := store.Bids().ListByLot(ctx, l.ID, 2)
	require.NoError(t, err)
	require.Len(t, cycleTwo, 1)
	assert.Equal(t, late.ID, cycleTwo[0].ID)

	bySettlement, err := store.Settlements().GetByBidID(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, bySettlement.ID)

	_, err = store.Settlements().GetByBidID(ctx, late.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// updating an existing bid does not duplicate it in the lot index
	require.NoError(t, early.Promote(t0.Add(2*time.Minute)))
	require.NoError(t, store.Save(ctx, outbound.LotChange{Lot: l, Bids: []*bid.Bid{early}}))
	all, err = store.Bids().ListByLot(ctx, l.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCatalog(t *testing.T) {
	lotID := uuid.New()
	catalog := NewCatalog(outbound.CatalogEntry{LotID: lotID, BasePrice: decimal.NewFromInt(500), Active: true})

	entry, err := catalog.GetLotCatalogEntry(context.Background(), lotID)
	require.NoError(t, err)
	assert.True(t, entry.BasePrice.Equal(decimal.NewFromInt(500)))

	catalog.Put(outbound.CatalogEntry{LotID: lotID, BasePrice: decimal.NewFromInt(700)})
	entry, err = catalog.GetLotCatalogEntry(context.Background(), lotID)
	require.NoError(t, err)
	assert.False(t, entry.Active)

	_, err = catalog.GetLotCatalogEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEligibilityGate(t *testing.T) {
	ctx := context.Background()
	projectID, userID := uuid.New(), uuid.New()

	gate := NewEligibilityGate()
	ok, _ := gate.CheckEligibility(ctx, userID, projectID)
	assert.False(t, ok)

	gate.Allow(projectID, userID)
	ok, _ = gate.CheckEligibility(ctx, userID, projectID)
	assert.True(t, ok)

	gate.Revoke(projectID, userID)
	ok, _ = gate.CheckEligibility(ctx, userID, projectID)
	assert.False(t, ok)

	ok, _ = NewOpenEligibilityGate().CheckEligibility(ctx, userID, projectID)
	assert.True(t, ok)
}
