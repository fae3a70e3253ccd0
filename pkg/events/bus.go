package events

import "sync"

// Bus is an in-process fan-out for live event consumers (CLI progress,
// tests). Subscribers get a buffered channel; if a subscriber falls behind
// its oldest pending event is dropped rather than blocking the engine.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

const subscriberBuffer = 64

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer. The returned cancel func closes the
// channel and removes the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Emit delivers the event to every subscriber without blocking.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		for {
			select {
			case ch <- e:
			default:
				// Buffer full: drop the oldest pending event and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close removes and closes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
