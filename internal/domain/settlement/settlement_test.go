package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementResolvesOnce(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Open(uuid.New(), 1, uuid.New(), uuid.New(), decimal.NewFromInt(1500), at.Add(90*24*time.Hour), at)
	assert.True(t, s.IsAwaiting())

	require.NoError(t, s.Default(ReasonDeadlineExpired, at))
	assert.Equal(t, StatusDefaulted, s.Status)
	assert.Equal(t, ReasonDeadlineExpired, s.DefaultReason)
	require.NotNil(t, s.ResolvedAt)

	assert.Error(t, s.Confirm(at))
	assert.Error(t, s.Default(ReasonMarkedByAdmin, at))

	c := s.Clone()
	c.Status = StatusConfirmed
	assert.Equal(t, StatusDefaulted, s.Status)
}
