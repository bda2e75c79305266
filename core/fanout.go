package core

import "sync"

// FanOut delivers one event stream to multiple subscribers with support for
// per-subscriber event filtering. Publishing never blocks: a subscriber whose
// buffer is full misses the event, so buffers should be sized for the
// consumer's pace.
type FanOut struct {
	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

// subscription is a single subscriber's channel and filter
type subscription struct {
	ch     chan Event
	filter map[EventType]bool
}

// NewFanOut creates an empty fan-out
func NewFanOut() *FanOut {
	return &FanOut{}
}

// Subscribe registers a new subscriber. If types is empty the subscriber
// receives all events; otherwise only the listed event types are delivered.
func (f *FanOut) Subscribe(buffer int, types ...EventType) <-chan Event {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	sub := &subscription{
		ch:     make(chan Event, buffer),
		filter: filter,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(sub.ch)
		return sub.ch
	}

	f.subs = append(f.subs, sub)
	return sub.ch
}

// Publish forwards an event to every subscriber whose filter accepts it.
// Delivery order is preserved per subscriber.
func (f *FanOut) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for _, sub := range f.subs {
		if !sub.shouldForwardEvent(event.EventType()) {
			continue
		}

		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer is full, skip this event
		}
	}
}

// Close closes all subscriber channels. Publish and Subscribe become no-ops.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for _, sub := range f.subs {
		close(sub.ch)
	}
	f.subs = nil
}

// shouldForwardEvent checks if an event type passes the subscription's filter
func (s *subscription) shouldForwardEvent(eventType EventType) bool {
	if s.filter == nil {
		return true
	}
	return s.filter[eventType]
}
