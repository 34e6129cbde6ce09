package events

import (
	"context"
	log "log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const DefaultQueueDepth = 1024

type Handler func(Envelope)

type subscription struct {
	types   []string
	handler Handler
}

func (s *subscription) wants(t string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

type item struct {
	env   Envelope
	flush chan struct{}
}

// Bus is an in-process fan-out of envelopes. Publish never blocks: when the
// queue is full the envelope is dropped and counted. Handlers run on the
// single dispatcher goroutine in publish order.
type Bus struct {
	queue chan item
	done  chan struct{}

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool

	smu    sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	dropped atomic.Uint64
}

func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	b := &Bus{
		queue: make(chan item, depth),
		done:  make(chan struct{}),
		subs:  make(map[uint64]*subscription),
	}
	go b.dispatch()

	return b
}

func (b *Bus) Publish(ev Event) Envelope {
	return b.publish(ev, uuid.NullUUID{})
}

func (b *Bus) PublishCorrelated(correlation uuid.UUID, ev Event) Envelope {
	return b.publish(ev, Correlated(correlation))
}

func (b *Bus) publish(ev Event, correlation uuid.NullUUID) Envelope {
	env := NewEnvelope(ev, correlation)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		return env
	}

	select {
	case b.queue <- item{env: env}:
	default:
		b.dropped.Add(1)
	}

	return env
}

// Subscribe registers h for the given event types; no types means all.
// The returned func removes the subscription.
func (b *Bus) Subscribe(types []string, h Handler) func() {
	b.smu.Lock()
	defer b.smu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{types: slices.Clone(types), handler: h}

	return func() {
		b.smu.Lock()
		delete(b.subs, id)
		b.smu.Unlock()
	}
}

// Flush waits until everything published before the call is delivered.
func (b *Bus) Flush(ctx context.Context) error {
	ch := make(chan struct{})

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	select {
	case b.queue <- item{flush: ch}:
	case <-ctx.Done():
		b.mu.RUnlock()
		return ctx.Err()
	}
	b.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close stops accepting envelopes, delivers what is queued and returns.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for it := range b.queue {
		if it.flush != nil {
			close(it.flush)
			continue
		}
		b.deliver(it.env)
	}
}

func (b *Bus) deliver(env Envelope) {
	t := env.Event.Type()

	b.smu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(t) {
			targets = append(targets, s.handler)
		}
	}
	b.smu.RUnlock()

	for _, h := range targets {
		call(h, env)
	}
}

func call(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Event handler panicked", "type", env.Event.Type(), "panic", r)
		}
	}()
	h(env)
}
