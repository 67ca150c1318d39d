package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/types"
)

// MemoryStore implements Store with in-memory maps.
// Intended for tests and demos. Transactions are
// serialized and run against a copy of the state that replaces the live
// state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	leases      map[uuid.UUID]types.Lease
	periods     map[uuid.UUID]types.RentPeriod
	payments    map[uuid.UUID]types.Payment
	allocations map[uuid.UUID][]types.Allocation
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		leases:      make(map[uuid.UUID]types.Lease),
		periods:     make(map[uuid.UUID]types.RentPeriod),
		payments:    make(map[uuid.UUID]types.Payment),
		allocations: make(map[uuid.UUID][]types.Allocation),
	}}
}

func (m *memState) clone() *memState {
	c := &memState{
		leases:      make(map[uuid.UUID]types.Lease, len(m.leases)),
		periods:     make(map[uuid.UUID]types.RentPeriod, len(m.periods)),
		payments:    make(map[uuid.UUID]types.Payment, len(m.payments)),
		allocations: make(map[uuid.UUID][]types.Allocation, len(m.allocations)),
	}
	for k, v := range m.leases {
		c.leases[k] = v
	}
	for k, v := range m.periods {
		c.periods[k] = v
	}
	for k, v := range m.payments {
		c.payments[k] = v
	}
	for k, v := range m.allocations {
		c.allocations[k] = append([]types.Allocation(nil), v...)
	}
	return c
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&memTx{memReader{work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) reader() memReader {
	return memReader{s.state}
}

func (s *MemoryStore) GetLease(ctx context.Context, id uuid.UUID) (types.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetLease(ctx, id)
}

func (s *MemoryStore) ActiveLease(ctx context.Context, tenantID, propertyID uuid.UUID) (types.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ActiveLease(ctx, tenantID, propertyID)
}

func (s *MemoryStore) ActiveLeases(ctx context.Context) ([]types.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ActiveLeases(ctx)
}

func (s *MemoryStore) GetPeriod(ctx context.Context, id uuid.UUID) (types.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetPeriod(ctx, id)
}

func (s *MemoryStore) ListPeriods(ctx context.Context, leaseID uuid.UUID) ([]types.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListPeriods(ctx, leaseID)
}

func (s *MemoryStore) OpenPeriods(ctx context.Context, tenantID, propertyID uuid.UUID) ([]types.RentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().OpenPeriods(ctx, tenantID, propertyID)
}

func (s *MemoryStore) GetPayment(ctx context.Context, id uuid.UUID) (types.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().GetPayment(ctx, id)
}

func (s *MemoryStore) ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]types.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListAllocations(ctx, paymentID)
}

type memReader struct {
	st *memState
}

func (r memReader) GetLease(_ context.Context, id uuid.UUID) (types.Lease, error) {
	l, ok := r.st.leases[id]
	if !ok {
		return types.Lease{}, fmt.Errorf("lease %s: %w", id, ErrNotFound)
	}
	return l, nil
}

func (r memReader) ActiveLease(_ context.Context, tenantID, propertyID uuid.UUID) (types.Lease, error) {
	for _, l := range r.st.leases {
		if l.TenantID == tenantID && l.PropertyID == propertyID && l.Status == types.LeaseActive {
			return l, nil
		}
	}
	return types.Lease{}, fmt.Errorf("active lease for tenant %s: %w", tenantID, ErrNotFound)
}

func (r memReader) ActiveLeases(context.Context) ([]types.Lease, error) {
	var out []types.Lease
	for _, l := range r.st.leases {
		if l.Status == types.LeaseActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r memReader) GetPeriod(_ context.Context, id uuid.UUID) (types.RentPeriod, error) {
	p, ok := r.st.periods[id]
	if !ok {
		return types.RentPeriod{}, fmt.Errorf("period %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r memReader) ListPeriods(_ context.Context, leaseID uuid.UUID) ([]types.RentPeriod, error) {
	var out []types.RentPeriod
	for _, p := range r.st.periods {
		if p.LeaseID == leaseID {
			out = append(out, p)
		}
	}
	sortPeriods(out)
	return out, nil
}

func (r memReader) OpenPeriods(_ context.Context, tenantID, propertyID uuid.UUID) ([]types.RentPeriod, error) {
	var out []types.RentPeriod
	for _, p := range r.st.periods {
		if p.Status == types.PeriodPaid {
			continue
		}
		l, ok := r.st.leases[p.LeaseID]
		if !ok || l.TenantID != tenantID || l.PropertyID != propertyID {
			continue
		}
		out = append(out, p)
	}
	sortPeriods(out)
	return out, nil
}

func (r memReader) GetPayment(_ context.Context, id uuid.UUID) (types.Payment, error) {
	p, ok := r.st.payments[id]
	if !ok {
		return types.Payment{}, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (r memReader) ListAllocations(_ context.Context, paymentID uuid.UUID) ([]types.Allocation, error) {
	return append([]types.Allocation(nil), r.st.allocations[paymentID]...), nil
}

func sortPeriods(ps []types.RentPeriod) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].DueDate.Equal(ps[j].DueDate) {
			return ps[i].DueDate.Before(ps[j].DueDate)
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}

type memTx struct {
	memReader
}

func (t *memTx) InsertLease(_ context.Context, l types.Lease) error {
	if _, ok := t.st.leases[l.ID]; ok {
		return fmt.Errorf("lease %s: %w", l.ID, ErrConflict)
	}
	if l.Status == types.LeaseActive && t.hasOtherActive(l) {
		return ErrActiveLeaseExists
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	t.st.leases[l.ID] = l
	return nil
}

func (t *memTx) UpdateLease(_ context.Context, l types.Lease) error {
	cur, ok := t.st.leases[l.ID]
	if !ok {
		return fmt.Errorf("lease %s: %w", l.ID, ErrNotFound)
	}
	if l.Status == types.LeaseActive && t.hasOtherActive(l) {
		return ErrActiveLeaseExists
	}
	l.CreatedAt = cur.CreatedAt
	l.CreatedBy = cur.CreatedBy
	l.UpdatedAt = time.Now().UTC()
	t.st.leases[l.ID] = l
	return nil
}

func (t *memTx) hasOtherActive(l types.Lease) bool {
	for id, other := range t.st.leases {
		if id != l.ID && other.Status == types.LeaseActive &&
			other.TenantID == l.TenantID && other.PropertyID == l.PropertyID {
			return true
		}
	}
	return false
}

func (t *memTx) InsertPeriods(_ context.Context, ps []types.RentPeriod) error {
	now := time.Now().UTC()
	for _, p := range ps {
		if _, ok := t.st.leases[p.LeaseID]; !ok {
			return fmt.Errorf("lease %s: %w", p.LeaseID, ErrNotFound)
		}
		if _, ok := t.st.periods[p.ID]; ok {
			return fmt.Errorf("period %s: %w", p.ID, ErrConflict)
		}
		p.Version = 1
		p.CreatedAt, p.UpdatedAt = now, now
		t.st.periods[p.ID] = p
	}
	return nil
}

func (t *memTx) UpdatePeriod(_ context.Context, p types.RentPeriod) (types.RentPeriod, error) {
	cur, ok := t.st.periods[p.ID]
	if !ok {
		return types.RentPeriod{}, fmt.Errorf("period %s: %w", p.ID, ErrNotFound)
	}
	if cur.Version != p.Version {
		return types.RentPeriod{}, fmt.Errorf("period %s at version %d, have %d: %w", p.ID, cur.Version, p.Version, ErrConflict)
	}
	p.Version++
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	t.st.periods[p.ID] = p
	return p, nil
}

func (t *memTx) DeletePeriods(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		p, ok := t.st.periods[id]
		if !ok {
			return fmt.Errorf("period %s: %w", id, ErrNotFound)
		}
		if p.Touched() {
			return fmt.Errorf("period %s has payments applied: %w", id, ErrConflict)
		}
	}
	for _, id := range ids {
		delete(t.st.periods, id)
	}
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p types.Payment) error {
	if _, ok := t.st.payments[p.ID]; ok {
		return fmt.Errorf("payment %s: %w", p.ID, ErrConflict)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.st.payments[p.ID] = p
	return nil
}

func (t *memTx) UpdatePayment(_ context.Context, p types.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment %s: %w", p.ID, ErrNotFound)
	}
	p.CreatedAt = cur.CreatedAt
	p.CreatedBy = cur.CreatedBy
	p.UpdatedAt = time.Now().UTC()
	t.st.payments[p.ID] = p
	return nil
}

func (t *memTx) DeletePayment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.payments[id]; !ok {
		return fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	delete(t.st.payments, id)
	delete(t.st.allocations, id)
	return nil
}

func (t *memTx) InsertAllocations(_ context.Context, as []types.Allocation) error {
	for _, a := range as {
		if _, ok := t.st.payments[a.PaymentID]; !ok {
			return fmt.Errorf("payment %s: %w", a.PaymentID, ErrNotFound)
		}
		if _, ok := t.st.periods[a.PeriodID]; !ok {
			return fmt.Errorf("period %s: %w", a.PeriodID, ErrNotFound)
		}
		t.st.allocations[a.PaymentID] = append(t.st.allocations[a.PaymentID], a)
	}
	return nil
}

func (t *memTx) DeleteAllocations(_ context.Context, paymentID uuid.UUID) error {
	delete(t.st.allocations, paymentID)
	return nil
}
