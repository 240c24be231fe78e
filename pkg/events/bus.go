package events

import "sync"

// DefaultBusCapacity is the buffer size of a per-agent event channel.
// Large enough that agents never block on emission in practice.
const DefaultBusCapacity = 64

// Bus is an ordered, single-producer event channel owned by one agent.
// Publish preserves FIFO order and blocks while the buffer is full; Close
// always returns, unblocking any publisher still waiting for buffer space.
// Once Close is called further publishes are dropped silently.
type Bus struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	ch     chan Event
	done   chan struct{}
	closed bool
}

// NewBus creates a bus with the given capacity (DefaultBusCapacity if <= 0).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

// Publish delivers an event to the subscriber. Blocks when the buffer is
// full so ordering is never sacrificed for throughput; a concurrent Close
// releases the block and the event is dropped.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()
	defer b.wg.Done()

	select {
	case b.ch <- e:
	case <-b.done:
		// Closed while waiting for buffer space.
	}
}

// Events returns the receive side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close marks the bus closed, releases blocked publishers, and closes the
// channel once no send is in flight. Buffered events stay readable.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	close(b.ch)
}
