package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

var audit = types.Audit{Actor: "alice", Source: "test"}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// captureRecorder keeps every recorded event in order.
type captureRecorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (c *captureRecorder) Record(_ context.Context, evt event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureRecorder) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	svc   *Service
	store store.Store
	rec   *captureRecorder
	today time.Time
}

func newFixture(t *testing.T, today time.Time) *fixture {
	return newFixtureOn(t, today, store.NewMemoryStore())
}

func newFixtureOn(t *testing.T, today time.Time, st store.Store) *fixture {
	t.Helper()
	f := &fixture{store: st, rec: &captureRecorder{}, today: today}
	f.svc = New(f.store, policy.Default(), WithRecorder(f.rec), WithClock(func() time.Time { return f.today }))
	return f
}

// sixMonthLease is $1000 monthly due on the 1st, January through June 2024.
func sixMonthLease() LeaseInput {
	return LeaseInput{
		TenantID:   uuid.New(),
		PropertyID: uuid.New(),
		Rent:       decimal.NewFromInt(1000),
		Cadence:    "monthly",
		RentDueDay: 1,
		StartDate:  date(2024, 1, 1),
		EndDate:    date(2024, 6, 30),
		MoveInFee:  decimal.Zero,
	}
}

func (f *fixture) createLease(t *testing.T, in LeaseInput) LeaseResult {
	t.Helper()
	res, err := f.svc.CreateLease(context.Background(), in, audit)
	require.NoError(t, err)
	return res
}

func (f *fixture) pay(t *testing.T, l types.Lease, amount string) PaymentResult {
	t.Helper()
	res, err := f.svc.RecordPayment(context.Background(), PaymentInput{
		TenantID:   l.TenantID,
		PropertyID: l.PropertyID,
		PaidOn:     f.today,
		Amount:     dec(amount),
		Type:       types.PaymentRent,
	}, audit)
	require.NoError(t, err)
	return res
}

func (f *fixture) periods(t *testing.T, leaseID uuid.UUID) []types.RentPeriod {
	t.Helper()
	ps, err := f.svc.ListPeriods(context.Background(), leaseID)
	require.NoError(t, err)
	return ps
}

// failingStore fails every InsertPeriods call while failInsert is set.
type failingStore struct {
	store.Store
	failInsert bool
}

func (s *failingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if s.failInsert {
			return fn(failingTx{tx})
		}
		return fn(tx)
	})
}

type failingTx struct{ store.Tx }

var errDiskFull = errors.New("disk full")

func (failingTx) InsertPeriods(context.Context, []types.RentPeriod) error { return errDiskFull }
