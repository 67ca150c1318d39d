package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createLease(t *testing.T, svc *ledger.Service, rent int64) types.Lease {
	t.Helper()
	res, err := svc.CreateLease(context.Background(), ledger.LeaseInput{
		TenantID:   uuid.New(),
		PropertyID: uuid.New(),
		Rent:       decimal.NewFromInt(rent),
		Cadence:    "monthly",
		RentDueDay: 1,
		StartDate:  date(2024, 1, 1),
		EndDate:    date(2024, 12, 31),
	}, types.SystemAudit())
	require.NoError(t, err)
	return res.Lease
}

func TestAssessSweep(t *testing.T) {
	svc := ledger.New(store.NewMemoryStore(), policy.Default())
	createLease(t, svc, 1000)
	createLease(t, svc, 1200)
	ended := createLease(t, svc, 900)
	status := types.LeaseEnded
	_, err := svc.UpdateLease(context.Background(), ended.ID, ledger.LeasePatch{Status: &status}, types.SystemAudit())
	require.NoError(t, err)

	sweep := NewAssessSweep(svc, types.SystemAudit())
	report, err := sweep.Run(context.Background(), date(2024, 1, 10), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Leases)
	assert.Equal(t, 2, report.Changed)
	assert.True(t, report.TotalLateFees.Equal(decimal.NewFromInt(90)))

	report, err = sweep.Run(context.Background(), date(2024, 1, 10), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Changed, "a second pass changes nothing")
}

type flakyAssessor struct {
	Assessor
	fail uuid.UUID
}

var errBoom = errors.New("boom")

func (f flakyAssessor) AssessLease(ctx context.Context, id uuid.UUID, asOf time.Time, force bool, audit types.Audit) (ledger.Assessment, error) {
	if id == f.fail {
		return ledger.Assessment{}, errBoom
	}
	return f.Assessor.AssessLease(ctx, id, asOf, force, audit)
}

func TestAssessSweep_ContinuesPastFailures(t *testing.T) {
	svc := ledger.New(store.NewMemoryStore(), policy.Default())
	bad := createLease(t, svc, 1000)
	createLease(t, svc, 1000)

	report, err := NewAssessSweep(flakyAssessor{Assessor: svc, fail: bad.ID}, types.SystemAudit()).
		Run(context.Background(), date(2024, 1, 10), false)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, report.Leases)
	assert.Equal(t, []uuid.UUID{bad.ID}, report.Failed)
}
