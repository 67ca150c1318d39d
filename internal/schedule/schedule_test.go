package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/cadence"
	"github.com/matthewbaird/rentledger/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testLease(c cadence.Cadence, dueDay int, start, end time.Time) types.Lease {
	return types.Lease{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		PropertyID: uuid.New(),
		Rent:       decimal.NewFromInt(1000),
		Cadence:    c,
		RentDueDay: dueDay,
		StartDate:  start,
		EndDate:    end,
		Status:     types.LeaseActive,
	}
}

func dueDates(ps []types.RentPeriod) []time.Time {
	out := make([]time.Time, len(ps))
	for i, p := range ps {
		out[i] = p.DueDate
	}
	return out
}

func TestGenerate_MonthlyExample(t *testing.T) {
	l := testLease(cadence.Monthly, 1, date(2024, 1, 1), date(2024, 6, 30))

	res, err := Generate(l)
	require.NoError(t, err)
	require.Len(t, res.Periods, 6)
	assert.Empty(t, res.Warnings)

	for i, p := range res.Periods {
		assert.Equal(t, date(2024, time.Month(i+1), 1), p.DueDate)
		assert.True(t, p.RentAmount.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, types.PeriodUnpaid, p.Status)
		assert.True(t, p.AmountPaid.IsZero())
		assert.Equal(t, l.ID, p.LeaseID)
	}
}

func TestGenerate_MonthlyDayOneNoGapsNoDuplicates(t *testing.T) {
	starts := []time.Time{date(2023, 11, 1), date(2023, 11, 2), date(2024, 2, 29)}
	for _, start := range starts {
		l := testLease(cadence.Monthly, 1, start, start.AddDate(1, 3, 0))
		res, err := Generate(l)
		require.NoError(t, err)
		require.NotEmpty(t, res.Periods)

		seen := make(map[time.Time]bool)
		for i, p := range res.Periods {
			assert.Equal(t, 1, p.DueDate.Day())
			assert.False(t, seen[p.DueDate], "duplicate %s", p.DueDate)
			seen[p.DueDate] = true
			assert.False(t, p.DueDate.Before(start))
			assert.False(t, p.DueDate.After(l.EndDate))
			if i > 0 {
				assert.Equal(t, res.Periods[i-1].DueDate.AddDate(0, 1, 0), p.DueDate)
			}
		}
	}
}

func TestGenerate_InclusiveEndBoundary(t *testing.T) {
	l := testLease(cadence.Monthly, 15, date(2024, 1, 15), date(2024, 3, 15))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15)}, dueDates(res.Periods))
}

func TestGenerate_WeeklyAlwaysFriday(t *testing.T) {
	for i := 0; i < 7; i++ {
		start := date(2024, 3, 4).AddDate(0, 0, i)
		l := testLease(cadence.Weekly, 0, start, start.AddDate(0, 2, 0))
		res, err := Generate(l)
		require.NoError(t, err)
		require.NotEmpty(t, res.Periods)
		for j, p := range res.Periods {
			assert.Equal(t, time.Friday, p.DueDate.Weekday())
			if j > 0 {
				assert.Equal(t, 7, types.DaysBetween(res.Periods[j-1].DueDate, p.DueDate))
			}
		}
	}
}

func TestGenerate_Biweekly(t *testing.T) {
	// 2024-01-01 is a Monday; the first Friday is 2024-01-05.
	l := testLease(cadence.Biweekly, 0, date(2024, 1, 1), date(2024, 2, 29))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2024, 1, 5), date(2024, 1, 19), date(2024, 2, 2), date(2024, 2, 16),
	}, dueDates(res.Periods))
}

func TestGenerate_WeeklyIgnoresDueDay(t *testing.T) {
	l := testLease(cadence.Weekly, 27, date(2024, 1, 1), date(2024, 1, 31))
	_, err := Generate(l)
	assert.NoError(t, err)
}

func TestGenerate_UnknownCadenceFallsBackToMonthly(t *testing.T) {
	l := testLease(cadence.Cadence("Quarterly"), 15, date(2024, 1, 1), date(2024, 3, 31))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Equal(t, cadence.Monthly, res.Cadence)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Quarterly")
	assert.Equal(t, []time.Time{date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15)}, dueDates(res.Periods))
}

func TestGenerate_FallbackWithBadDueDayUsesFirst(t *testing.T) {
	l := testLease(cadence.Cadence(""), 0, date(2024, 1, 1), date(2024, 2, 28))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, []time.Time{date(2024, 1, 1), date(2024, 2, 1)}, dueDates(res.Periods))
}

func TestGenerate_NormalizesStoredSpelling(t *testing.T) {
	l := testLease(cadence.Cadence("Bi_Weekly"), 0, date(2024, 1, 1), date(2024, 1, 31))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, cadence.Biweekly, res.Cadence)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Lease)
	}{
		{"end before start", func(l *types.Lease) { l.EndDate = l.StartDate.AddDate(0, 0, -1) }},
		{"zero rent", func(l *types.Lease) { l.Rent = decimal.Zero }},
		{"negative rent", func(l *types.Lease) { l.Rent = decimal.NewFromInt(-5) }},
		{"monthly due day 10", func(l *types.Lease) { l.RentDueDay = 10 }},
		{"missing start", func(l *types.Lease) { l.StartDate = time.Time{} }},
		{"negative override", func(l *types.Lease) { o := decimal.NewFromInt(-1); l.LateFeeOverride = &o }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLease(cadence.Monthly, 1, date(2024, 1, 1), date(2024, 6, 30))
			tt.mutate(&l)
			_, err := Generate(l)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestGenerate_SingleDayLease(t *testing.T) {
	l := testLease(cadence.Monthly, 1, date(2024, 5, 1), date(2024, 5, 1))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, 5, 1)}, dueDates(res.Periods))

	l = testLease(cadence.Monthly, 1, date(2024, 5, 2), date(2024, 5, 2))
	res, err = Generate(l)
	require.NoError(t, err)
	assert.Empty(t, res.Periods)
}

func TestGenerate_TerminatedStopsAtTerminationDate(t *testing.T) {
	l := testLease(cadence.Monthly, 1, date(2024, 1, 1), date(2024, 12, 31))
	on := date(2024, 3, 10)
	l.TerminatedOn = &on
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Len(t, res.Periods, 3)
}

func TestGenerate_TooManyPeriods(t *testing.T) {
	l := testLease(cadence.Weekly, 0, date(2000, 1, 1), date(2100, 1, 1))
	_, err := Generate(l)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestGenerate_EmptyTermWarns(t *testing.T) {
	l := testLease(cadence.Monthly, 15, date(2024, 1, 20), date(2024, 2, 10))
	res, err := Generate(l)
	require.NoError(t, err)
	assert.Empty(t, res.Periods)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no monthly due date falls between 2024-01-20 and 2024-02-10")
}
