package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/rentledger/internal/cadence"
	"github.com/matthewbaird/rentledger/internal/types"
)

// schema is applied one statement at a time by Migrate. The partial unique
// index keeps at most one active lease per tenant and property.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		rent TEXT NOT NULL,
		cadence TEXT NOT NULL,
		rent_due_day INTEGER NOT NULL DEFAULT 0,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		move_in_fee TEXT NOT NULL DEFAULT '0',
		late_fee_override TEXT,
		terminated_on TEXT,
		periods_pending INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		source TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS leases_one_active
		ON leases (tenant_id, property_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS rent_periods (
		id TEXT PRIMARY KEY,
		lease_id TEXT NOT NULL REFERENCES leases(id),
		due_date TEXT NOT NULL,
		rent_amount TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		late_fee_applied TEXT NOT NULL DEFAULT '0',
		late_fee_waived INTEGER NOT NULL DEFAULT 0,
		late_fee_source TEXT NOT NULL DEFAULT 'none',
		late_fee_assessed_at TEXT,
		late_fee_set_by TEXT NOT NULL DEFAULT '',
		late_fee_set_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS rent_periods_lease_due ON rent_periods (lease_id, due_date)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		paid_on TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		unapplied TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		created_by TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		source TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		payment_id TEXT NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
		period_id TEXT NOT NULL REFERENCES rent_periods(id),
		amount TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS allocations_payment ON allocations (payment_id)`,
}

const (
	leasesTable      = "leases"
	periodsTable     = "rent_periods"
	paymentsTable    = "payments"
	allocationsTable = "allocations"
)

var (
	leaseColumns = []string{
		"id", "tenant_id", "property_id", "rent", "cadence", "rent_due_day",
		"start_date", "end_date", "status", "move_in_fee", "late_fee_override",
		"terminated_on", "periods_pending", "created_at", "updated_at",
		"created_by", "updated_by", "source",
	}
	periodColumns = []string{
		"id", "lease_id", "due_date", "rent_amount", "amount_paid", "status",
		"late_fee_applied", "late_fee_waived", "late_fee_source",
		"late_fee_assessed_at", "late_fee_set_by", "late_fee_set_at",
		"version", "created_at", "updated_at",
	}
	paymentColumns = []string{
		"id", "tenant_id", "property_id", "paid_on", "amount", "type", "notes",
		"unapplied", "created_at", "updated_at", "created_by", "updated_by", "source",
	}
	allocationColumns = []string{"payment_id", "period_id", "amount"}
)

// SQLStore implements Store on SQLite through ent's SQL dialect driver.
type SQLStore struct {
	sqlConn
	drv *entsql.Driver
}

// Open opens the SQLite database at dsn. The pool is limited to a single
// connection so write transactions are serialized.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	return NewSQLStore(entsql.OpenDB(dialect.SQLite, db)), nil
}

// NewSQLStore wraps an existing ent SQL driver.
func NewSQLStore(drv *entsql.Driver) *SQLStore {
	return &SQLStore{sqlConn: sqlConn{q: drv}, drv: drv}
}

// Driver exposes the underlying driver so other SQLite-backed stores can
// share the connection.
func (s *SQLStore) Driver() *entsql.Driver { return s.drv }

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("running schema migration: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error { return s.drv.Close() }

func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(&sqlConn{q: tx}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			log.Printf("store: rollback failed: %v", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// sqlConn runs queries on either the driver or an open transaction.
type sqlConn struct {
	q dialect.ExecQuerier
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

func (c *sqlConn) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res sql.Result
	if err := c.q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlConn) selectRows(ctx context.Context, sel *entsql.Selector, scan func(entsql.ColumnScanner) error) error {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := c.q.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --- leases ---

func (c *sqlConn) GetLease(ctx context.Context, id uuid.UUID) (types.Lease, error) {
	return c.oneLease(ctx, entsql.EQ("id", id.String()), fmt.Sprintf("lease %s", id))
}

func (c *sqlConn) ActiveLease(ctx context.Context, tenantID, propertyID uuid.UUID) (types.Lease, error) {
	return c.oneLease(ctx, entsql.And(
		entsql.EQ("tenant_id", tenantID.String()),
		entsql.EQ("property_id", propertyID.String()),
		entsql.EQ("status", string(types.LeaseActive)),
	), fmt.Sprintf("active lease for tenant %s", tenantID))
}

func (c *sqlConn) ActiveLeases(ctx context.Context) ([]types.Lease, error) {
	b := builder()
	sel := b.Select(leaseColumns...).From(b.Table(leasesTable)).
		Where(entsql.EQ("status", string(types.LeaseActive))).
		OrderBy("id")
	var out []types.Lease
	err := c.selectRows(ctx, sel, func(r entsql.ColumnScanner) error {
		l, err := scanLease(r)
		out = append(out, l)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing active leases: %w", err)
	}
	return out, nil
}

func (c *sqlConn) oneLease(ctx context.Context, where *entsql.Predicate, what string) (types.Lease, error) {
	b := builder()
	sel := b.Select(leaseColumns...).From(b.Table(leasesTable)).Where(where).Limit(1)
	var (
		out   types.Lease
		found bool
	)
	err := c.selectRows(ctx, sel, func(r entsql.ColumnScanner) error {
		l, err := scanLease(r)
		out, found = l, true
		return err
	})
	if err != nil {
		return types.Lease{}, fmt.Errorf("querying %s: %w", what, err)
	}
	if !found {
		return types.Lease{}, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return out, nil
}

func (c *sqlConn) InsertLease(ctx context.Context, l types.Lease) error {
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	query, args := builder().Insert(leasesTable).Columns(leaseColumns...).Values(leaseValues(l)...).Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return leaseWriteError(l.ID, err)
	}
	return nil
}

func (c *sqlConn) UpdateLease(ctx context.Context, l types.Lease) error {
	vals := leaseValues(l)
	upd := builder().Update(leasesTable)
	// id, tenant, property and creation audit never change.
	for i, col := range leaseColumns {
		switch col {
		case "id", "tenant_id", "property_id", "created_at", "created_by", "updated_at":
			continue
		}
		upd.Set(col, vals[i])
	}
	upd.Set("updated_at", formatStamp(time.Now().UTC()))
	query, args := upd.Where(entsql.EQ("id", l.ID.String())).Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return leaseWriteError(l.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("lease %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

func leaseWriteError(id uuid.UUID, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: leases.tenant_id"):
		return ErrActiveLeaseExists
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("lease %s: %w", id, ErrConflict)
	}
	return fmt.Errorf("writing lease %s: %w", id, err)
}

func leaseValues(l types.Lease) []any {
	return []any{
		l.ID.String(), l.TenantID.String(), l.PropertyID.String(), l.Rent.String(),
		string(l.Cadence), l.RentDueDay, types.FormatDate(l.StartDate), types.FormatDate(l.EndDate),
		string(l.Status), l.MoveInFee.String(), nullDecimal(l.LateFeeOverride),
		nullDate(l.TerminatedOn), boolInt(l.PeriodsPending), formatStamp(l.CreatedAt),
		formatStamp(l.UpdatedAt), l.CreatedBy, l.UpdatedBy, l.Source,
	}
}

func scanLease(r entsql.ColumnScanner) (types.Lease, error) {
	var (
		l                                           types.Lease
		id, tenant, property, rent, cad, start, end string
		status, moveIn, created, updated            string
		override, terminated                        sql.NullString
		pending                                     int
	)
	if err := r.Scan(&id, &tenant, &property, &rent, &cad, &l.RentDueDay, &start, &end,
		&status, &moveIn, &override, &terminated, &pending, &created, &updated,
		&l.CreatedBy, &l.UpdatedBy, &l.Source); err != nil {
		return l, err
	}
	var p fieldParser
	l.ID = p.uuid(id)
	l.TenantID = p.uuid(tenant)
	l.PropertyID = p.uuid(property)
	l.Rent = p.decimal(rent)
	l.Cadence = cadence.Cadence(cad)
	l.StartDate = p.date(start)
	l.EndDate = p.date(end)
	l.Status = types.LeaseStatus(status)
	l.MoveInFee = p.decimal(moveIn)
	l.LateFeeOverride = p.nullDecimal(override)
	l.TerminatedOn = p.nullDate(terminated)
	l.PeriodsPending = pending != 0
	l.CreatedAt = p.stamp(created)
	l.UpdatedAt = p.stamp(updated)
	return l, p.err
}

// --- rent periods ---

func (c *sqlConn) GetPeriod(ctx context.Context, id uuid.UUID) (types.RentPeriod, error) {
	b := builder()
	sel := b.Select(periodColumns...).From(b.Table(periodsTable)).Where(entsql.EQ("id", id.String()))
	ps, err := c.periods(ctx, sel)
	if err != nil {
		return types.RentPeriod{}, fmt.Errorf("querying period %s: %w", id, err)
	}
	if len(ps) == 0 {
		return types.RentPeriod{}, fmt.Errorf("period %s: %w", id, ErrNotFound)
	}
	return ps[0], nil
}

func (c *sqlConn) ListPeriods(ctx context.Context, leaseID uuid.UUID) ([]types.RentPeriod, error) {
	b := builder()
	sel := b.Select(periodColumns...).From(b.Table(periodsTable)).
		Where(entsql.EQ("lease_id", leaseID.String())).
		OrderBy("due_date", "id")
	ps, err := c.periods(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("listing periods for lease %s: %w", leaseID, err)
	}
	return ps, nil
}

func (c *sqlConn) OpenPeriods(ctx context.Context, tenantID, propertyID uuid.UUID) ([]types.RentPeriod, error) {
	b := builder()
	p := b.Table(periodsTable)
	l := b.Table(leasesTable)
	cols := make([]string, len(periodColumns))
	for i, col := range periodColumns {
		cols[i] = p.C(col)
	}
	sel := b.Select(cols...).From(p).
		Join(l).On(p.C("lease_id"), l.C("id")).
		Where(entsql.And(
			entsql.EQ(l.C("tenant_id"), tenantID.String()),
			entsql.EQ(l.C("property_id"), propertyID.String()),
			entsql.NEQ(p.C("status"), string(types.PeriodPaid)),
		)).
		OrderBy(p.C("due_date"), p.C("id"))
	ps, err := c.periods(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("listing open periods for tenant %s: %w", tenantID, err)
	}
	return ps, nil
}

func (c *sqlConn) periods(ctx context.Context, sel *entsql.Selector) ([]types.RentPeriod, error) {
	var out []types.RentPeriod
	err := c.selectRows(ctx, sel, func(r entsql.ColumnScanner) error {
		p, err := scanPeriod(r)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (c *sqlConn) InsertPeriods(ctx context.Context, ps []types.RentPeriod) error {
	if len(ps) == 0 {
		return nil
	}
	now := time.Now().UTC()
	ins := builder().Insert(periodsTable).Columns(periodColumns...)
	for _, p := range ps {
		p.Version = 1
		p.CreatedAt, p.UpdatedAt = now, now
		ins.Values(periodValues(p)...)
	}
	query, args := ins.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("inserting periods: %w", ErrConflict)
		}
		return fmt.Errorf("inserting periods: %w", err)
	}
	return nil
}

func (c *sqlConn) UpdatePeriod(ctx context.Context, p types.RentPeriod) (types.RentPeriod, error) {
	expected := p.Version
	p.Version++
	p.UpdatedAt = time.Now().UTC()

	vals := periodValues(p)
	upd := builder().Update(periodsTable)
	for i, col := range periodColumns {
		switch col {
		case "id", "lease_id", "created_at":
			continue
		}
		upd.Set(col, vals[i])
	}
	query, args := upd.Where(entsql.And(
		entsql.EQ("id", p.ID.String()),
		entsql.EQ("version", expected),
	)).Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return types.RentPeriod{}, fmt.Errorf("updating period %s: %w", p.ID, err)
	}
	if n == 0 {
		cur, err := c.GetPeriod(ctx, p.ID)
		if err != nil {
			return types.RentPeriod{}, err
		}
		return types.RentPeriod{}, fmt.Errorf("period %s at version %d, have %d: %w", p.ID, cur.Version, expected, ErrConflict)
	}
	return p, nil
}

func (c *sqlConn) DeletePeriods(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	query, qargs := builder().Delete(periodsTable).Where(entsql.And(
		entsql.In("id", args...),
		entsql.EQ("status", string(types.PeriodUnpaid)),
		entsql.EQ("amount_paid", "0"),
	)).Query()
	n, err := c.exec(ctx, query, qargs)
	if err != nil {
		return fmt.Errorf("deleting periods: %w", err)
	}
	if int(n) != len(ids) {
		return fmt.Errorf("deleted %d of %d periods, the rest have payments applied or are gone: %w", n, len(ids), ErrConflict)
	}
	return nil
}

func periodValues(p types.RentPeriod) []any {
	return []any{
		p.ID.String(), p.LeaseID.String(), types.FormatDate(p.DueDate), p.RentAmount.String(),
		p.AmountPaid.String(), string(p.Status), p.LateFeeApplied.String(), boolInt(p.LateFeeWaived),
		string(p.LateFeeSource), nullStamp(p.LateFeeAssessedAt), p.LateFeeSetBy, nullStamp(p.LateFeeSetAt),
		p.Version, formatStamp(p.CreatedAt), formatStamp(p.UpdatedAt),
	}
}

func scanPeriod(r entsql.ColumnScanner) (types.RentPeriod, error) {
	var (
		p                                       types.RentPeriod
		id, lease, due, rent, paid, status, fee string
		source, created, updated                string
		assessedAt, setAt                       sql.NullString
		waived                                  int
	)
	if err := r.Scan(&id, &lease, &due, &rent, &paid, &status, &fee, &waived, &source,
		&assessedAt, &p.LateFeeSetBy, &setAt, &p.Version, &created, &updated); err != nil {
		return p, err
	}
	var fp fieldParser
	p.ID = fp.uuid(id)
	p.LeaseID = fp.uuid(lease)
	p.DueDate = fp.date(due)
	p.RentAmount = fp.decimal(rent)
	p.AmountPaid = fp.decimal(paid)
	p.Status = types.PeriodStatus(status)
	p.LateFeeApplied = fp.decimal(fee)
	p.LateFeeWaived = waived != 0
	p.LateFeeSource = types.LateFeeSource(source)
	p.LateFeeAssessedAt = fp.nullStamp(assessedAt)
	p.LateFeeSetAt = fp.nullStamp(setAt)
	p.CreatedAt = fp.stamp(created)
	p.UpdatedAt = fp.stamp(updated)
	return p, fp.err
}

// --- payments ---

func (c *sqlConn) GetPayment(ctx context.Context, id uuid.UUID) (types.Payment, error) {
	b := builder()
	sel := b.Select(paymentColumns...).From(b.Table(paymentsTable)).Where(entsql.EQ("id", id.String()))
	var (
		out   types.Payment
		found bool
	)
	err := c.selectRows(ctx, sel, func(r entsql.ColumnScanner) error {
		p, err := scanPayment(r)
		out, found = p, true
		return err
	})
	if err != nil {
		return types.Payment{}, fmt.Errorf("querying payment %s: %w", id, err)
	}
	if !found {
		return types.Payment{}, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	return out, nil
}

func (c *sqlConn) InsertPayment(ctx context.Context, p types.Payment) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	query, args := builder().Insert(paymentsTable).Columns(paymentColumns...).Values(paymentValues(p)...).Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("inserting payment %s: %w", p.ID, err)
	}
	return nil
}

func (c *sqlConn) UpdatePayment(ctx context.Context, p types.Payment) error {
	vals := paymentValues(p)
	upd := builder().Update(paymentsTable)
	for i, col := range paymentColumns {
		switch col {
		case "id", "created_at", "created_by", "updated_at":
			continue
		}
		upd.Set(col, vals[i])
	}
	upd.Set("updated_at", formatStamp(time.Now().UTC()))
	query, args := upd.Where(entsql.EQ("id", p.ID.String())).Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("updating payment %s: %w", p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("payment %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (c *sqlConn) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if err := c.DeleteAllocations(ctx, id); err != nil {
		return err
	}
	query, args := builder().Delete(paymentsTable).Where(entsql.EQ("id", id.String())).Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return fmt.Errorf("deleting payment %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	return nil
}

func paymentValues(p types.Payment) []any {
	return []any{
		p.ID.String(), p.TenantID.String(), p.PropertyID.String(), types.FormatDate(p.PaidOn),
		p.Amount.String(), string(p.Type), p.Notes, p.Unapplied.String(),
		formatStamp(p.CreatedAt), formatStamp(p.UpdatedAt), p.CreatedBy, p.UpdatedBy, p.Source,
	}
}

func scanPayment(r entsql.ColumnScanner) (types.Payment, error) {
	var (
		p                                         types.Payment
		id, tenant, property, paidOn, amount, typ string
		unapplied, created, updated               string
	)
	if err := r.Scan(&id, &tenant, &property, &paidOn, &amount, &typ, &p.Notes,
		&unapplied, &created, &updated, &p.CreatedBy, &p.UpdatedBy, &p.Source); err != nil {
		return p, err
	}
	var fp fieldParser
	p.ID = fp.uuid(id)
	p.TenantID = fp.uuid(tenant)
	p.PropertyID = fp.uuid(property)
	p.PaidOn = fp.date(paidOn)
	p.Amount = fp.decimal(amount)
	p.Type = types.PaymentType(typ)
	p.Unapplied = fp.decimal(unapplied)
	p.CreatedAt = fp.stamp(created)
	p.UpdatedAt = fp.stamp(updated)
	return p, fp.err
}

// --- allocations ---

func (c *sqlConn) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]types.Allocation, error) {
	b := builder()
	sel := b.Select(allocationColumns...).From(b.Table(allocationsTable)).
		Where(entsql.EQ("payment_id", paymentID.String()))
	var out []types.Allocation
	err := c.selectRows(ctx, sel, func(r entsql.ColumnScanner) error {
		var payment, period, amount string
		if err := r.Scan(&payment, &period, &amount); err != nil {
			return err
		}
		var fp fieldParser
		a := types.Allocation{
			PaymentID: fp.uuid(payment),
			PeriodID:  fp.uuid(period),
			Amount:    fp.decimal(amount),
		}
		out = append(out, a)
		return fp.err
	})
	if err != nil {
		return nil, fmt.Errorf("listing allocations for payment %s: %w", paymentID, err)
	}
	return out, nil
}

func (c *sqlConn) InsertAllocations(ctx context.Context, as []types.Allocation) error {
	if len(as) == 0 {
		return nil
	}
	ins := builder().Insert(allocationsTable).Columns(allocationColumns...)
	for _, a := range as {
		ins.Values(a.PaymentID.String(), a.PeriodID.String(), a.Amount.String())
	}
	query, args := ins.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("inserting allocations: %w", err)
	}
	return nil
}

func (c *sqlConn) DeleteAllocations(ctx context.Context, paymentID uuid.UUID) error {
	query, args := builder().Delete(allocationsTable).Where(entsql.EQ("payment_id", paymentID.String())).Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("deleting allocations for payment %s: %w", paymentID, err)
	}
	return nil
}

// --- column codecs ---

func formatStamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullStamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatStamp(*t)
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return types.FormatDate(*t)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// fieldParser decodes TEXT columns and keeps the first error.
type fieldParser struct {
	err error
}

func (p *fieldParser) fail(kind, s string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("decoding %s %q: %w", kind, s, err)
	}
}

func (p *fieldParser) uuid(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		p.fail("uuid", s, err)
	}
	return id
}

func (p *fieldParser) decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail("decimal", s, err)
	}
	return d
}

func (p *fieldParser) date(s string) time.Time {
	t, err := types.ParseDate(s)
	if err != nil {
		p.fail("date", s, err)
	}
	return t
}

func (p *fieldParser) stamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		p.fail("timestamp", s, err)
	}
	return t
}

func (p *fieldParser) nullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := p.decimal(s.String)
	return &d
}

func (p *fieldParser) nullDate(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.date(s.String)
	return &t
}

func (p *fieldParser) nullStamp(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.stamp(s.String)
	return &t
}
