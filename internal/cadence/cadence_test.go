package cadence

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/matthewbaird/rentledger/internal/policy"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		want   Cadence
		wantOK bool
	}{
		{"weekly", Weekly, true},
		{"WEEKLY", Weekly, true},
		{" Weekly ", Weekly, true},
		{"bi-weekly", Biweekly, true},
		{"bi_weekly", Biweekly, true},
		{"biweekly", Biweekly, true},
		{"Bi-Weekly", Biweekly, true},
		{"BI WEEKLY", Biweekly, true},
		{"monthly", Monthly, true},
		{"Monthly", Monthly, true},
		{"", Monthly, false},
		{"quarterly", Monthly, false},
		{"daily", Monthly, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParse_RejectsUnknown(t *testing.T) {
	_, err := Parse("yearly")
	assert.True(t, errors.Is(err, ErrUnknownCadence))

	c, err := Parse("Bi_Weekly")
	assert.NoError(t, err)
	assert.Equal(t, Biweekly, c)
}

func TestIntervalDays(t *testing.T) {
	assert.Equal(t, 7, Weekly.IntervalDays())
	assert.Equal(t, 14, Biweekly.IntervalDays())
	assert.Equal(t, 30, Monthly.IntervalDays())
}

func TestFirstDue_Monthly(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		dueDay int
		want   time.Time
	}{
		{"on due day", date(2024, 1, 1), 1, date(2024, 1, 1)},
		{"after day 1", date(2024, 1, 10), 1, date(2024, 2, 1)},
		{"before day 15", date(2024, 1, 10), 15, date(2024, 1, 15)},
		{"after day 15", date(2024, 1, 20), 15, date(2024, 2, 15)},
		{"december rolls year", date(2024, 12, 20), 1, date(2025, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Monthly.FirstDue(tt.start, tt.dueDay))
		})
	}
}

func TestFirstDue_WeeklyIsFriday(t *testing.T) {
	// 2024-01-01 is a Monday.
	for i := 0; i < 7; i++ {
		start := date(2024, 1, 1).AddDate(0, 0, i)
		got := Weekly.FirstDue(start, 0)
		assert.Equal(t, time.Friday, got.Weekday(), "start %s", start.Weekday())
		assert.False(t, got.Before(start))
		assert.Less(t, got.Sub(start), 7*24*time.Hour)
	}
}

func TestNext(t *testing.T) {
	assert.Equal(t, date(2024, 1, 12), Weekly.Next(date(2024, 1, 5)))
	assert.Equal(t, date(2024, 1, 19), Biweekly.Next(date(2024, 1, 5)))
	assert.Equal(t, date(2024, 2, 15), Monthly.Next(date(2024, 1, 15)))
	assert.Equal(t, date(2025, 1, 1), Monthly.Next(date(2024, 12, 1)))
}

func TestDefaultLateFee(t *testing.T) {
	p := policy.Default()
	assert.True(t, Weekly.DefaultLateFee(p).Equal(decimal.NewFromInt(10)))
	assert.True(t, Biweekly.DefaultLateFee(p).Equal(decimal.NewFromInt(20)))
	assert.True(t, Monthly.DefaultLateFee(p).Equal(decimal.NewFromInt(45)))
}

func TestValidDueDay(t *testing.T) {
	assert.True(t, ValidDueDay(1))
	assert.True(t, ValidDueDay(15))
	assert.False(t, ValidDueDay(0))
	assert.False(t, ValidDueDay(5))
	assert.False(t, ValidDueDay(31))
}
