package allocation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/types"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func period(due time.Time, rent, paid string) types.RentPeriod {
	p := types.RentPeriod{
		ID:         uuid.New(),
		LeaseID:    uuid.New(),
		DueDate:    due,
		RentAmount: dec(rent),
		AmountPaid: dec(paid),
	}
	p.Status = StatusFor(p)
	return p
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAuto_Example(t *testing.T) {
	newer := period(date(2024, 2, 1), "1000", "0")
	older := period(date(2024, 1, 1), "1000", "0")

	res, err := Auto(dec("1500"), []types.RentPeriod{newer, older})
	require.NoError(t, err)
	require.Len(t, res.Periods, 2)

	assert.Equal(t, older.ID, res.Periods[0].ID)
	assert.Equal(t, types.PeriodPaid, res.Periods[0].Status)
	assert.True(t, res.Periods[0].AmountPaid.Equal(dec("1000")))

	assert.Equal(t, newer.ID, res.Periods[1].ID)
	assert.Equal(t, types.PeriodPartial, res.Periods[1].Status)
	assert.True(t, res.Periods[1].AmountPaid.Equal(dec("500")))

	assert.True(t, res.TotalAllocated.Equal(dec("1500")))
	assert.True(t, res.Unapplied.IsZero())
	assert.True(t, res.Lines[1].BalanceAfter.Equal(dec("500")))
}

func TestAuto_Conservation(t *testing.T) {
	candidates := []types.RentPeriod{
		period(date(2024, 1, 1), "1000", "250"),
		period(date(2024, 2, 1), "1000", "0"),
		period(date(2024, 3, 1), "999.99", "0"),
	}
	balance := dec("2749.99")

	for _, amt := range []string{"0.01", "750", "1000", "1750.50", "2749.99"} {
		t.Run(amt, func(t *testing.T) {
			res, err := Auto(dec(amt), candidates)
			require.NoError(t, err)
			assert.True(t, res.TotalAllocated.Equal(dec(amt)), "allocated %s", res.TotalAllocated)
			assert.True(t, res.Unapplied.IsZero())
			for _, p := range res.Periods {
				assert.False(t, p.AmountPaid.GreaterThan(p.RentAmount))
			}
		})
	}

	t.Run("overpayment", func(t *testing.T) {
		res, err := Auto(balance.Add(dec("100")), candidates)
		require.NoError(t, err)
		assert.True(t, res.TotalAllocated.Equal(balance))
		assert.True(t, res.Unapplied.Equal(dec("100")))
		require.Len(t, res.Periods, 3)
		for _, p := range res.Periods {
			assert.Equal(t, types.PeriodPaid, p.Status)
			assert.True(t, p.AmountPaid.Equal(p.RentAmount))
		}
	})
}

func TestAuto_SkipsPaidAndLeavesInputUntouched(t *testing.T) {
	paid := period(date(2024, 1, 1), "1000", "1000")
	open := period(date(2024, 2, 1), "1000", "0")
	candidates := []types.RentPeriod{paid, open}

	res, err := Auto(dec("200"), candidates)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, open.ID, res.Lines[0].PeriodID)
	assert.True(t, candidates[1].AmountPaid.IsZero())
}

func TestAuto_NoCandidates(t *testing.T) {
	res, err := Auto(dec("300"), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.True(t, res.Unapplied.Equal(dec("300")))
}

func TestAuto_RejectsNonPositive(t *testing.T) {
	_, err := Auto(decimal.Zero, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Auto(dec("-5"), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestManual_NotOldestFirst(t *testing.T) {
	older := period(date(2024, 1, 1), "1000", "0")
	newer := period(date(2024, 2, 1), "1000", "0")

	res, err := Manual(dec("800"), []types.RentPeriod{older, newer}, map[uuid.UUID]decimal.Decimal{
		newer.ID: dec("600"),
	})
	require.NoError(t, err)
	require.Len(t, res.Periods, 1)
	assert.Equal(t, newer.ID, res.Periods[0].ID)
	assert.Equal(t, types.PeriodPartial, res.Periods[0].Status)
	assert.True(t, res.Unapplied.Equal(dec("200")))
	assert.Equal(t, ModeManual, res.Mode)
}

func TestManual_Validation(t *testing.T) {
	a := period(date(2024, 1, 1), "1000", "900")
	b := period(date(2024, 2, 1), "1000", "0")
	candidates := []types.RentPeriod{a, b}

	tests := []struct {
		name  string
		split map[uuid.UUID]decimal.Decimal
		want  error
	}{
		{"exceeds balance", map[uuid.UUID]decimal.Decimal{a.ID: dec("150")}, ErrOverAllocation},
		{"unknown period", map[uuid.UUID]decimal.Decimal{uuid.New(): dec("10")}, ErrUnknownPeriod},
		{"zero amount", map[uuid.UUID]decimal.Decimal{b.ID: decimal.Zero}, ErrInvalidAmount},
		{"more than payment", map[uuid.UUID]decimal.Decimal{a.ID: dec("100"), b.ID: dec("500")}, ErrOverPayment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Manual(dec("550"), candidates, tt.split)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReverse(t *testing.T) {
	p := period(date(2024, 1, 1), "1000", "1000")
	Reverse(&p, dec("400"))
	assert.Equal(t, types.PeriodPartial, p.Status)
	Reverse(&p, dec("600"))
	assert.Equal(t, types.PeriodUnpaid, p.Status)
	assert.True(t, p.AmountPaid.IsZero())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, types.PeriodUnpaid, StatusFor(period(date(2024, 1, 1), "10", "0")))
	assert.Equal(t, types.PeriodPartial, StatusFor(period(date(2024, 1, 1), "10", "9.99")))
	assert.Equal(t, types.PeriodPaid, StatusFor(period(date(2024, 1, 1), "10", "10")))
}
