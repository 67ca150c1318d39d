// Package eventbus delivers committed ledger events to in-process
// consumers such as the log and the websocket stream.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/matthewbaird/rentledger/internal/event"
)

// Handler consumes one event. Handlers run on the bus goroutine, one event
// at a time.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

type subscription struct {
	name       string
	handler    Handler
	eventTypes []string
}

func (s subscription) wants(eventType string) bool {
	return len(s.eventTypes) == 0 || slices.Contains(s.eventTypes, eventType)
}

// Bus queues events on a bounded channel and hands them to subscribers in
// publish order. Publish never blocks the ledger: when the queue is full
// the event is dropped and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscription
	stopped bool
	queue   chan event.DomainEvent
	done    chan struct{}
	dropped atomic.Uint64
}

// New creates a bus holding at most size undelivered events.
func New(size int) *Bus {
	if size < 1 {
		size = 256
	}
	return &Bus{
		queue: make(chan event.DomainEvent, size),
		done:  make(chan struct{}),
	}
}

// Subscribe registers h under name. With eventTypes the handler only sees
// those types. Call before Start.
func (b *Bus) Subscribe(name string, h Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h, eventTypes: eventTypes})
}

// Publish implements event.Publisher.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.drop(evt, "bus stopped")
		return
	}
	select {
	case b.queue <- evt:
	default:
		b.drop(evt, "queue full")
	}
}

func (b *Bus) drop(evt event.DomainEvent, why string) {
	n := b.dropped.Add(1)
	log.Printf("eventbus: %s, dropped %s %s (%d dropped so far)", why, evt.EventType, event.Short(evt.ID), n)
}

// Dropped returns how many events were not delivered.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Start delivers events on a new goroutine until Stop is called or ctx is
// done. Events already queued when ctx ends are still delivered.
func (b *Bus) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.queue:
			if !ok {
				return
			}
			b.deliver(ctx, evt)
		case <-ctx.Done():
			b.drain(ctx)
			return
		}
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case evt, ok := <-b.queue:
			if !ok {
				return
			}
			b.deliver(ctx, evt)
		default:
			return
		}
	}
}

// Stop refuses further events and waits for the queue to empty. Start must
// have been called.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) deliver(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.wants(evt.EventType) {
			continue
		}
		if err := s.call(ctx, evt); err != nil {
			log.Printf("eventbus: %s: %s %s: %v", s.name, evt.EventType, event.Short(evt.ID), err)
		}
	}
}

// call runs the handler, turning a panic into an error so one consumer
// cannot stop delivery to the others.
func (s subscription) call(ctx context.Context, evt event.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler.HandleEvent(ctx, evt)
}
