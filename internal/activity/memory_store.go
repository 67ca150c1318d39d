package activity

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/matthewbaird/rentledger/internal/types"
)

type entityKey struct {
	typ, id string
}

// MemoryStore keeps the feed in memory, indexed by entity. Like SQLStore
// it ignores an entry whose entity and event were already written.
type MemoryStore struct {
	mu       sync.RWMutex
	byEntity map[entityKey][]types.ActivityEntry
	seen     map[entityKey]map[string]struct{}
	all      []types.ActivityEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEntity: make(map[entityKey][]types.ActivityEntry),
		seen:     make(map[entityKey]map[string]struct{}),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		k := entityKey{e.IndexedEntityType, e.IndexedEntityID}
		events := s.seen[k]
		if events == nil {
			events = make(map[string]struct{})
			s.seen[k] = events
		}
		if _, dup := events[e.EventID]; dup {
			continue
		}
		events[e.EventID] = struct{}{}
		s.byEntity[k] = append(s.byEntity[k], e)
		s.all = append(s.all, e)
	}
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	s.mu.RLock()
	matched := filterNewestFirst(s.byEntity[entityKey{entityType, entityID}], opts.admits)
	s.mu.RUnlock()

	total := len(matched)
	if cursor := parseCursor(opts.Cursor); cursor != nil {
		i := 0
		for i < len(matched) && !matched[i].OccurredAt.Before(*cursor) {
			i++
		}
		matched = matched[i:]
	}

	var next string
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
		next = cursorOf(matched[limit-1])
	}
	return matched, next, total, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	q := strings.ToLower(query)
	s.mu.RLock()
	matched := filterNewestFirst(s.all, func(e types.ActivityEntry) bool { return opts.admits(e, q) })
	s.mu.RUnlock()

	total := len(matched)
	if limit := opts.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// filterNewestFirst copies the entries keep accepts, newest first. Entries
// with equal timestamps keep their write order.
func filterNewestFirst(entries []types.ActivityEntry, keep func(types.ActivityEntry) bool) []types.ActivityEntry {
	var out []types.ActivityEntry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b types.ActivityEntry) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	return out
}
