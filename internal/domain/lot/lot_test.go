package lot

import (
	"errors"
	"testing"
	"time"

	"lot-auction-service/internal/domain/auction"
	"lot-auction-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLot() *Lot {
	project := uuid.New()
	return New(uuid.New(), &project, nil, decimal.NewFromInt(1000), true, now)
}

// finishWithWinner runs the current cycle to a close with one winning bid
func finishWithWinner(t *testing.T, l *Lot, at time.Time) {
	t.Helper()
	_, err := l.Start(at, at.Add(time.Hour), at)
	require.NoError(t, err)
	l.RecordBid(uuid.New(), decimal.NewFromInt(1500), at)
	winner, err := l.Finish(at.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, winner)
	l.OpenSettlement(uuid.New(), at.Add(time.Minute))
}

func TestNewLot(t *testing.T) {
	l := newLot()
	assert.Len(t, l.Cycles, 1)
	assert.Equal(t, auction.StatePending, l.State())
	assert.False(t, l.HasStarted())
	assert.Nil(t, l.Cycle(2))
	assert.Equal(t, 1, l.Cycle(1).Number)
}

func TestStartRejections(t *testing.T) {
	t.Run("inactive lot", func(t *testing.T) {
		l := newLot()
		l.Active = false
		_, err := l.Start(now, now.Add(time.Hour), now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("no project", func(t *testing.T) {
		l := newLot()
		l.ProjectID = nil
		_, err := l.Start(now, now.Add(time.Hour), now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("inverted window", func(t *testing.T) {
		l := newLot()
		_, err := l.Start(now.Add(time.Hour), now, now)
		assert.ErrorIs(t, err, shared.ErrInvalidTimeRange)
		assert.Equal(t, auction.StatePending, l.State())
	})

	t.Run("window already over", func(t *testing.T) {
		l := newLot()
		_, err := l.Start(now.Add(-2*time.Hour), now.Add(-time.Hour), now)
		assert.ErrorIs(t, err, shared.ErrInvalidTimeRange)
	})

	t.Run("already active", func(t *testing.T) {
		l := newLot()
		_, err := l.Start(now, now.Add(time.Hour), now)
		require.NoError(t, err)
		_, err = l.Start(now, now.Add(time.Hour), now)
		var invalid *shared.InvalidStateError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, string(auction.StateActive), invalid.State)
	})

	t.Run("finished with a winner", func(t *testing.T) {
		l := newLot()
		_, err := l.Start(now, now.Add(time.Hour), now)
		require.NoError(t, err)
		l.RecordBid(uuid.New(), decimal.NewFromInt(1100), now)
		_, err = l.Finish(now.Add(time.Minute))
		require.NoError(t, err)
		_, err = l.Start(now.Add(2*time.Hour), now.Add(3*time.Hour), now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestScheduleThenActivate(t *testing.T) {
	l := newLot()
	start := now.Add(time.Hour)
	c, err := l.Schedule(start, start.Add(time.Hour), now)
	require.NoError(t, err)
	assert.True(t, c.IsPending())
	assert.True(t, c.HasWindow())

	assert.False(t, l.Activate(2, start), "unknown cycle")
	assert.True(t, l.Activate(1, start))
	assert.False(t, l.Activate(1, start), "second activation is a no-op")
	assert.Equal(t, auction.StateActive, l.State())
	assert.True(t, l.HasStarted())
}

func TestCatalogFrozenAfterStart(t *testing.T) {
	l := newLot()
	project := uuid.New()
	l.ApplyCatalog(&project, nil, decimal.NewFromInt(2000), true, now)
	assert.Equal(t, project, *l.ProjectID)
	assert.True(t, l.BasePrice.Equal(decimal.NewFromInt(2000)))

	_, err := l.Start(now, now.Add(time.Hour), now)
	require.NoError(t, err)

	other := uuid.New()
	owner := uuid.New()
	l.ApplyCatalog(&other, &owner, decimal.NewFromInt(1), false, now)
	assert.Equal(t, project, *l.ProjectID)
	assert.True(t, l.BasePrice.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, owner, *l.OwnerID)
	assert.False(t, l.Active)
}

func TestFinishRequiresActive(t *testing.T) {
	l := newLot()
	_, err := l.Finish(now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestDefaultEscalation(t *testing.T) {
	l := newLot()
	at := now
	for attempt := 1; attempt <= 3; attempt++ {
		finishWithWinner(t, l, at)
		assert.True(t, l.AwaitingPayment())

		escalation, err := l.RegisterDefault(3, at.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, attempt, l.FailedAttempts)
		if attempt < 3 {
			assert.Equal(t, EscalationReassignable, escalation)
		} else {
			assert.Equal(t, EscalationClosedUnsold, escalation)
		}
		at = at.Add(2 * time.Hour)
	}
	assert.Len(t, l.Cycles, 3)

	// a fourth cycle is refused until an administrative reset
	_, err := l.Start(at, at.Add(time.Hour), at)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Contains(t, err.Error(), "failed attempts must be reset first")

	require.NoError(t, l.ResetFailedAttempts(at))
	assert.Equal(t, 0, l.FailedAttempts)
	assert.Equal(t, EscalationReassignable, l.Escalation)

	c, err := l.Start(at, at.Add(time.Hour), at)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Number)
	assert.Equal(t, EscalationNone, l.Escalation)
}

func TestRegisterDefaultRequiresAwaitingPayment(t *testing.T) {
	l := newLot()
	_, err := l.RegisterDefault(3, now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, 0, l.FailedAttempts)
}

func TestConfirmPayment(t *testing.T) {
	l := newLot()
	finishWithWinner(t, l, now)
	require.NoError(t, l.ConfirmPayment(now))
	assert.Equal(t, EscalationConfirmed, l.Escalation)
	assert.ErrorIs(t, l.ConfirmPayment(now), shared.ErrInvalidState)

	_, err := l.Start(now.Add(time.Hour), now.Add(2*time.Hour), now)
	assert.ErrorIs(t, err, shared.ErrInvalidState, "a paid lot cannot reopen")
}

func TestResetFailedAttemptsRejections(t *testing.T) {
	l := newLot()
	_, err := l.Start(now, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.ErrorIs(t, l.ResetFailedAttempts(now), shared.ErrInvalidState)

	l.RecordBid(uuid.New(), decimal.NewFromInt(1100), now)
	_, err = l.Finish(now)
	require.NoError(t, err)
	l.OpenSettlement(uuid.New(), now)
	assert.ErrorIs(t, l.ResetFailedAttempts(now), shared.ErrInvalidState)
}

func TestCycleWithoutBidsAllowsRestart(t *testing.T) {
	l := newLot()
	l.FailedAttempts = 2
	_, err := l.Start(now, now.Add(time.Hour), now)
	require.NoError(t, err)
	winner, err := l.Finish(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, winner)
	assert.Nil(t, l.Current().SettlementID)
	assert.Equal(t, EscalationReassignable, l.Escalation)
	assert.Equal(t, 2, l.FailedAttempts)

	c, err := l.Start(now.Add(2*time.Hour), now.Add(3*time.Hour), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Number)
	assert.Equal(t, EscalationNone, l.Escalation)
	assert.Equal(t, 2, l.FailedAttempts)
}

func TestCloneIsIndependent(t *testing.T) {
	l := newLot()
	c := l.Clone()
	_, err := c.Start(now, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, auction.StatePending, l.State())
}
