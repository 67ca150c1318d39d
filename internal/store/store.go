// Package store persists leases, rent periods, payments and allocations.
// All multi-row changes go through WithTx so that reading candidate periods,
// allocating, and writing them back is one unit, and so that regeneration's
// delete and insert are atomic.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/matthewbaird/rentledger/internal/types"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a period changed underneath an update
	// (version mismatch) or a delete would remove a period with payments.
	ErrConflict = errors.New("concurrent modification")
	// ErrActiveLeaseExists is returned when a second active lease is saved
	// for the same tenant and property.
	ErrActiveLeaseExists = errors.New("an active lease already exists for this tenant and property")
)

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	GetLease(ctx context.Context, id uuid.UUID) (types.Lease, error)
	// ActiveLease returns the active lease for a tenant and property.
	ActiveLease(ctx context.Context, tenantID, propertyID uuid.UUID) (types.Lease, error)
	// ActiveLeases returns every active lease ordered by ID.
	ActiveLeases(ctx context.Context) ([]types.Lease, error)
	GetPeriod(ctx context.Context, id uuid.UUID) (types.RentPeriod, error)
	// ListPeriods returns a lease's periods ordered by due date.
	ListPeriods(ctx context.Context, leaseID uuid.UUID) ([]types.RentPeriod, error)
	// OpenPeriods returns every unpaid or partial period on any of the
	// tenant's leases at the property, ordered by due date.
	OpenPeriods(ctx context.Context, tenantID, propertyID uuid.UUID) ([]types.RentPeriod, error)
	GetPayment(ctx context.Context, id uuid.UUID) (types.Payment, error)
	ListAllocations(ctx context.Context, paymentID uuid.UUID) ([]types.Allocation, error)
}

// Tx is a unit of work. Writes become visible when the WithTx callback
// returns nil and are discarded otherwise.
type Tx interface {
	Reader

	InsertLease(ctx context.Context, l types.Lease) error
	UpdateLease(ctx context.Context, l types.Lease) error

	InsertPeriods(ctx context.Context, ps []types.RentPeriod) error
	// UpdatePeriod writes p if the stored version still equals p.Version and
	// returns the period with its version bumped. Otherwise ErrConflict.
	UpdatePeriod(ctx context.Context, p types.RentPeriod) (types.RentPeriod, error)
	// DeletePeriods removes untouched periods. If any listed period has a
	// payment applied the whole call fails with ErrConflict.
	DeletePeriods(ctx context.Context, ids []uuid.UUID) error

	InsertPayment(ctx context.Context, p types.Payment) error
	UpdatePayment(ctx context.Context, p types.Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error

	InsertAllocations(ctx context.Context, as []types.Allocation) error
	DeleteAllocations(ctx context.Context, paymentID uuid.UUID) error
}

// Store is the persistence boundary used by the ledger service.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Migrate(ctx context.Context) error
	Close() error
}
