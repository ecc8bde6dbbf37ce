package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusFull is returned by Send when a group queue is saturated. Callers log
// and drop; retrying would reorder or duplicate frames.
var ErrBusFull = errors.New("bus group queue is full")

// Bus is an in-process group-addressed pub/sub transport.
//
// Two delivery modes exist. Send puts an event on a group's shared queue where
// exactly one consumer picks it up, so a frame is never processed twice by the
// same worker type. Broadcast fans an event out to every subscriber of a group;
// subscribers whose buffers are full miss the event rather than block the
// publisher. Publishing never blocks.
type Bus struct {
	capacity    int
	mu          sync.RWMutex
	queues      map[string]chan Event
	subscribers map[string]map[string]chan Event
	closed      bool
	dropped     uint64
}

// New creates a bus whose group queues and subscriber buffers hold capacity
// events each.
func New(capacity int) *Bus {
	return &Bus{
		capacity:    capacity,
		queues:      make(map[string]chan Event),
		subscribers: make(map[string]map[string]chan Event),
	}
}

// Send enqueues an event for a single consumer of the group. Returns ErrBusFull
// when the queue is saturated.
func (b *Bus) Send(group string, ev Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus is closed")
	}
	queue, ok := b.queues[group]
	if !ok {
		queue = make(chan Event, b.capacity)
		b.queues[group] = queue
	}
	b.mu.Unlock()

	select {
	case queue <- ev:
		return nil
	default:
		atomic.AddUint64(&b.dropped, 1)
		return ErrBusFull
	}
}

// Consume returns the group's shared queue. Every consumer ranging over it
// competes for events; each event is delivered to exactly one of them.
func (b *Bus) Consume(group string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue, ok := b.queues[group]
	if !ok {
		queue = make(chan Event, b.capacity)
		b.queues[group] = queue
	}
	return queue
}

// Join subscribes id to a broadcast group and returns its buffered channel.
// Joining an id twice replaces the previous subscription.
func (b *Bus) Join(group, id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	members, ok := b.subscribers[group]
	if !ok {
		members = make(map[string]chan Event)
		b.subscribers[group] = members
	}
	ch := make(chan Event, b.capacity)
	members[id] = ch
	return ch
}

// Leave removes a subscriber from a broadcast group.
func (b *Bus) Leave(group, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if members, ok := b.subscribers[group]; ok {
		delete(members, id)
	}
}

// Broadcast fans an event out to all subscribers of a group. Subscribers with
// full buffers are skipped. Returns the number of deliveries.
func (b *Bus) Broadcast(group string, ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subscribers[group] {
		select {
		case ch <- ev:
			delivered++
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
	return delivered
}

// Dropped reports how many events were dropped due to saturation.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Close shuts the bus down: group queues are closed so consumer loops exit.
// Used on operator-initiated shutdown; the signal propagates, it is not
// suppressed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, queue := range b.queues {
		close(queue)
	}
}
