package event

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentledger/internal/activity"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (c *capturePublisher) Publish(_ context.Context, evt DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func TestActivityRecorder_FansOutPerEntity(t *testing.T) {
	ctx := context.Background()
	store := activity.NewMemoryStore()
	pub := &capturePublisher{}
	rec := NewActivityRecorder(store, WithPublisher(pub))

	evt := NewPaymentRecorded(PaymentRecordedPayload{
		PaymentID:  "pay-00000001",
		TenantID:   "ten-00000001",
		PropertyID: "pro-00000001",
		Type:       "rent",
		Amount:     decimal.NewFromInt(1500),
		Mode:       "auto",
		Allocated:  decimal.NewFromInt(1500),
		Unapplied:  decimal.Zero,
		Lines: []AllocationLine{
			{PeriodID: "per-00000001", Amount: decimal.NewFromInt(1000)},
			{PeriodID: "per-00000002", Amount: decimal.NewFromInt(500)},
		},
	})
	require.NoError(t, rec.Record(ctx, evt))

	for _, ref := range []struct{ typ, id string }{
		{"payment", "pay-00000001"},
		{"tenant", "ten-00000001"},
		{"period", "per-00000002"},
	} {
		entries, _, total, err := store.QueryByEntity(ctx, ref.typ, ref.id, activity.DefaultQueryOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, total, "%s:%s", ref.typ, ref.id)
		if assert.Len(t, entries, 1) {
			assert.Equal(t, "payment_recorded", entries[0].EventType)
			assert.Len(t, entries[0].SourceRefs, 5)
		}
	}

	require.Len(t, pub.events, 1)
	assert.Equal(t, evt.ID, pub.events[0].ID)
}

func TestEntries_KeepsMostDirectRole(t *testing.T) {
	evt := DomainEvent{
		ID:        "evt-1",
		EventType: "payment_recorded",
		AffectedEntities: []SourceRef{
			{EntityType: "payment", EntityID: "pay-1", Role: "subject"},
			{EntityType: "lease", EntityID: "lea-1", Role: "context"},
			{EntityType: "lease", EntityID: "lea-1", Role: "target"},
		},
	}
	entries := Entries(evt)
	require.Len(t, entries, 2)
	assert.Equal(t, "lease", entries[1].IndexedEntityType)
	assert.Equal(t, "target", entries[1].EntityRole)
	assert.Len(t, entries[1].SourceRefs, 3)
}

func TestLateFeeOverridden_WaiverSummary(t *testing.T) {
	evt := NewLateFeeOverridden(LateFeeOverriddenPayload{
		LeaseID:  "lease-1",
		PeriodID: "period-1",
		Fee:      decimal.Zero,
		Waived:   true,
		SetBy:    "alice",
	})
	assert.Equal(t, "Late fee waived by alice", evt.Summary)
	assert.Equal(t, "positive", evt.Polarity)
	assert.JSONEq(t, `{"lease_id":"lease-1","period_id":"period-1","previous_fee":"0","fee":"0","waived":true,"set_by":"alice"}`, string(evt.Payload))
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", Short("abc"))
	assert.Equal(t, "12345678", Short("1234567890"))
}
