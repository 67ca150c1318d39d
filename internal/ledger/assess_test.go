package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

func TestAssessLease_NineDaysLate(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10))
	lease := f.createLease(t, sixMonthLease()).Lease

	res, err := f.svc.AssessLease(context.Background(), lease.ID, date(2024, 1, 10), false, audit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	assert.True(t, res.TotalLateFees.Equal(decimal.NewFromInt(45)))

	jan := f.periods(t, lease.ID)[0]
	assert.True(t, jan.LateFeeApplied.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, types.LateFeeAutomatic, jan.LateFeeSource)
	require.NotNil(t, jan.LateFeeAssessedAt)
	assert.Equal(t, date(2024, 1, 10), *jan.LateFeeAssessedAt)
}

func TestAssessLease_Idempotent(t *testing.T) {
	f := newFixture(t, date(2024, 3, 10))
	lease := f.createLease(t, sixMonthLease()).Lease
	ctx := context.Background()

	first, err := f.svc.AssessLease(ctx, lease.ID, time.Time{}, false, audit)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 3, 10), first.AsOf, "zero as-of means today")
	assert.Equal(t, 3, first.Changed)

	second, err := f.svc.AssessLease(ctx, lease.ID, time.Time{}, false, audit)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Changed)
	assert.True(t, first.TotalLateFees.Equal(second.TotalLateFees))
}

func TestAssessLease_ManualFeeSkippedUnlessForced(t *testing.T) {
	f := newFixture(t, date(2024, 1, 20))
	lease := f.createLease(t, sixMonthLease()).Lease
	ctx := context.Background()
	jan := f.periods(t, lease.ID)[0]

	waived, err := f.svc.OverrideLateFee(ctx, jan.ID, OverrideInput{Fee: decimal.Zero}, audit)
	require.NoError(t, err)
	assert.True(t, waived.LateFeeWaived)
	assert.Equal(t, types.LateFeeManual, waived.LateFeeSource)
	assert.Equal(t, "alice", waived.LateFeeSetBy)

	res, err := f.svc.AssessLease(ctx, lease.ID, date(2024, 1, 20), false, audit)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{jan.ID}, res.Skipped)
	assert.True(t, f.periods(t, lease.ID)[0].LateFeeApplied.IsZero())

	res, err = f.svc.AssessLease(ctx, lease.ID, date(2024, 1, 20), true, audit)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	got := f.periods(t, lease.ID)[0]
	assert.True(t, got.LateFeeApplied.Equal(decimal.NewFromInt(45)))
	assert.False(t, got.LateFeeWaived)
	assert.Equal(t, types.LateFeeAutomatic, got.LateFeeSource)
}

func TestAssessLease_LeaseOverrideRate(t *testing.T) {
	f := newFixture(t, date(2024, 2, 15))
	in := sixMonthLease()
	rate := decimal.NewFromInt(25)
	in.LateFeeOverride = &rate
	lease := f.createLease(t, in).Lease

	res, err := f.svc.AssessLease(context.Background(), lease.ID, date(2024, 2, 15), false, audit)
	require.NoError(t, err)
	// January is 45 days late (2 periods), February 14 (1 period).
	assert.True(t, res.TotalLateFees.Equal(decimal.NewFromInt(75)), "got %s", res.TotalLateFees)
}

func TestAssessTenant(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10))
	lease := f.createLease(t, sixMonthLease()).Lease
	ctx := context.Background()

	res, err := f.svc.AssessTenant(ctx, lease.TenantID, lease.PropertyID, time.Time{}, false, audit)
	require.NoError(t, err)
	assert.Equal(t, lease.ID, res.LeaseID)

	_, err = f.svc.AssessTenant(ctx, uuid.New(), lease.PropertyID, time.Time{}, false, audit)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOverrideLateFee_Errors(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10))
	lease := f.createLease(t, sixMonthLease()).Lease
	ctx := context.Background()
	jan := f.periods(t, lease.ID)[0]

	stale := jan.Version + 5
	_, err := f.svc.OverrideLateFee(ctx, jan.ID, OverrideInput{Fee: decimal.NewFromInt(10), Version: &stale}, audit)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.svc.OverrideLateFee(ctx, jan.ID, OverrideInput{Fee: decimal.NewFromInt(-1)}, audit)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.svc.OverrideLateFee(ctx, uuid.New(), OverrideInput{Fee: decimal.NewFromInt(10)}, audit)
	assert.ErrorIs(t, err, store.ErrNotFound)

	current := jan.Version
	got, err := f.svc.OverrideLateFee(ctx, jan.ID, OverrideInput{Fee: decimal.NewFromInt(60), Version: &current}, audit)
	require.NoError(t, err)
	assert.Equal(t, current+1, got.Version)
	assert.True(t, got.LateFeeApplied.Equal(decimal.NewFromInt(60)))
}
