// Package ledger runs the rent engine against the store. Every operation
// that reads periods and writes them back does so inside one store
// transaction; domain events are recorded after the transaction commits.
package ledger

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/types"
)

var (
	// ErrInvalid marks a request the ledger rejects before touching the store.
	ErrInvalid = errors.New("invalid request")
	// ErrLeaseClosed is returned when a change needs an active lease.
	ErrLeaseClosed = errors.New("lease is not active")
)

// Service is the rent engine's entry point for the HTTP and CLI layers.
type Service struct {
	store    store.Store
	policy   policy.Policy
	recorder event.Recorder
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets where domain events go. The default discards them.
func WithRecorder(r event.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock replaces time.Now, which decides "today" for regeneration
// cutoffs and default as-of dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(st store.Store, p policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:    st,
		policy:   p,
		recorder: event.Discard{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the late-fee policy in effect.
func (s *Service) Policy() policy.Policy { return s.policy }

func (s *Service) today() time.Time {
	return types.Day(s.now())
}

// emit records events once their transaction has committed. A recording
// failure is logged; the ledger change already stands.
func (s *Service) emit(ctx context.Context, audit types.Audit, evts ...event.DomainEvent) {
	cid := ""
	if audit.CorrelationID != nil {
		cid = *audit.CorrelationID
	}
	for _, evt := range evts {
		evt = evt.WithAudit(audit.Actor, audit.Source, cid)
		if err := s.recorder.Record(ctx, evt); err != nil {
			log.Printf("ledger: recording %s (%s): %v", evt.EventType, evt.ID, err)
		}
	}
}
