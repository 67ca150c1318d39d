// Package event defines the ledger's domain events and records them into
// the activity feed.
package event

import (
	"context"
	"fmt"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/types"
)

type SourceRef = types.SourceRef

// Recorder accepts events after the ledger transaction that produced them
// has committed.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher hands events to live consumers. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// ActivityRecorder writes each event into the activity feed and then
// publishes it. An event whose feed write fails is not published.
type ActivityRecorder struct {
	feed activity.Store
	pub  Publisher
}

type RecorderOption func(*ActivityRecorder)

// WithPublisher publishes recorded events to p.
func WithPublisher(p Publisher) RecorderOption {
	return func(r *ActivityRecorder) { r.pub = p }
}

func NewActivityRecorder(feed activity.Store, opts ...RecorderOption) *ActivityRecorder {
	r := &ActivityRecorder{feed: feed}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	if err := r.feed.WriteEntries(ctx, Entries(evt)); err != nil {
		return fmt.Errorf("recording %s: %w", evt.EventType, err)
	}
	if r.pub != nil {
		r.pub.Publish(ctx, evt)
	}
	return nil
}

// rolePriority ranks roles when an entity is referenced more than once.
var rolePriority = map[string]int{"subject": 0, "target": 1, "related": 2, "context": 3}

// Entries indexes evt under every entity it references, one entry per
// entity. An entity listed twice keeps its most direct role.
func Entries(evt DomainEvent) []types.ActivityEntry {
	out := make([]types.ActivityEntry, 0, len(evt.AffectedEntities))
	at := make(map[SourceRef]int)
	for _, ref := range evt.AffectedEntities {
		key := SourceRef{EntityType: ref.EntityType, EntityID: ref.EntityID}
		if i, ok := at[key]; ok {
			if rank(ref.Role) < rank(out[i].EntityRole) {
				out[i].EntityRole = ref.Role
			}
			continue
		}
		at[key] = len(out)
		out = append(out, types.ActivityEntry{
			EventID:           evt.ID,
			EventType:         evt.EventType,
			OccurredAt:        evt.OccurredAt,
			IndexedEntityType: ref.EntityType,
			IndexedEntityID:   ref.EntityID,
			EntityRole:        ref.Role,
			SourceRefs:        evt.AffectedEntities,
			Summary:           evt.Summary,
			Category:          evt.Category,
			Weight:            evt.Weight,
			Polarity:          evt.Polarity,
			Payload:           evt.Payload,
		})
	}
	return out
}

func rank(role string) int {
	if p, ok := rolePriority[role]; ok {
		return p
	}
	return len(rolePriority)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, DomainEvent) error { return nil }
