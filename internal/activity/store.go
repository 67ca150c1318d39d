package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/rentledger/internal/types"
)

// Store is the interface for reading and writing activity entries.
// Entries live in their own table next to the ledger tables and are
// written after the ledger transaction commits.
type Store interface {
	// Migrate creates the backing table if needed.
	Migrate(ctx context.Context) error

	// WriteEntries writes one or more activity entries (one event, many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search matches a substring against entry summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

const entriesTable = "activity_entries"

// stampLayout is fixed width so stored timestamps sort as text.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

var entryColumns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "weight", "polarity", "payload",
}

// SQLStore implements Store on SQLite through ent's SQL dialect driver.
type SQLStore struct {
	drv *entsql.Driver
}

// NewSQLStore creates a SQLStore on an open driver, typically the one the
// ledger store uses.
func NewSQLStore(drv *entsql.Driver) *SQLStore {
	return &SQLStore{drv: drv}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_entries (
			event_id            TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			occurred_at         TEXT NOT NULL,
			indexed_entity_type TEXT NOT NULL,
			indexed_entity_id   TEXT NOT NULL,
			entity_role         TEXT NOT NULL,
			source_refs         TEXT NOT NULL DEFAULT '[]',
			summary             TEXT NOT NULL,
			category            TEXT NOT NULL,
			weight              TEXT NOT NULL,
			polarity            TEXT NOT NULL,
			payload             TEXT,
			PRIMARY KEY (indexed_entity_type, indexed_entity_id, occurred_at, event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_entity_category_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, category, occurred_at DESC)`,
	}
	for _, stmt := range stmts {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("creating activity table: %w", err)
		}
	}
	return nil
}

// WriteEntries inserts activity entries. Re-delivered entries are ignored.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := entsql.Dialect(dialect.SQLite).Insert(entriesTable).Columns(entryColumns...).OnConflict(entsql.DoNothing())
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, stamp(e.OccurredAt), e.IndexedEntityType,
			e.IndexedEntityID, e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Weight,
			e.Polarity, payload,
		)
	}
	query, args := ins.Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := opts.limit()

	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", stamp(*opts.Since)))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", stamp(*opts.Until)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
	}
	if ws := minWeights(opts.MinWeight); ws != nil {
		preds = append(preds, entsql.In("weight", anySlice(ws)...))
	}
	filter := entsql.And(preds...)

	total, err := s.count(ctx, filter)
	if err != nil {
		return nil, "", 0, err
	}

	page := preds
	if opts.Cursor != "" {
		if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			page = append(page[:len(page):len(page)], entsql.LT("occurred_at", stamp(cursorTime)))
		}
	}
	b := entsql.Dialect(dialect.SQLite)
	sel := b.Select(entryColumns...).From(b.Table(entriesTable)).
		Where(entsql.And(page...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit + 1) // one extra for the cursor
	entries, err := s.query(ctx, sel)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return entries, nextCursor, total, nil
}

// Search matches a substring against entry summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", stamp(*opts.Since)))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
	}
	filter := entsql.And(preds...)

	total, err := s.count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	b := entsql.Dialect(dialect.SQLite)
	sel := b.Select(entryColumns...).From(b.Table(entriesTable)).
		Where(filter).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(opts.limit())
	entries, err := s.query(ctx, sel)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) count(ctx context.Context, filter *entsql.Predicate) (int, error) {
	b := entsql.Dialect(dialect.SQLite)
	query, args := b.Select(entsql.Count("*")).From(b.Table(entriesTable)).Where(filter).Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting activity entries: %w", err)
		}
	}
	return n, rows.Err()
}

func (s *SQLStore) query(ctx context.Context, sel *entsql.Selector) ([]types.ActivityEntry, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var (
			e                types.ActivityEntry
			occurredAt, refs string
			payload          *string
		)
		if err := rows.Scan(
			&e.EventID, &e.EventType, &occurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refs, &e.Summary, &e.Category, &e.Weight, &e.Polarity, &payload,
		); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = t
		if refs != "" {
			_ = json.Unmarshal([]byte(refs), &e.SourceRefs)
		}
		if payload != nil {
			e.Payload = json.RawMessage(*payload)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
