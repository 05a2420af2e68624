// Package telemetry carries store events to observers without ever blocking
// the code that emits them.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of store event.
type EventType string

const (
	EventAdded     EventType = "added"
	EventDeleted   EventType = "deleted"
	EventCleared   EventType = "cleared"
	EventSearched  EventType = "searched"
	EventPruned    EventType = "pruned"
	EventEvicted   EventType = "evicted"
	EventError     EventType = "error"
	EventPersisted EventType = "persisted"
	EventLoaded    EventType = "loaded"
)

// DefaultBuffer is the queue length used when NewBus is given a non-positive size.
const DefaultBuffer = 256

// Event represents a store event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Publish(Event)
}

// Nop is a Sink that discards everything.
type Nop struct{}

// Publish implements Sink.
func (Nop) Publish(Event) {}

// Handler is a function that handles events.
type Handler func(Event)

// Bus is an asynchronous Sink. Publish enqueues and returns immediately; a
// single dispatcher goroutine delivers events to subscribers in order.
// When the queue is full the event is dropped and counted.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]Handler
	allHandlers []Handler

	closeMu sync.RWMutex
	closed  bool
	queue   chan Event
	done    chan struct{}

	dropped  atomic.Uint64
	panicked atomic.Uint64
}

// NewBus creates a bus with the given queue length and starts its dispatcher.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queue:    make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish enqueues an event. It never blocks; events published after Close or
// while the queue is full are dropped.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Panics reports how many handler invocations panicked.
func (b *Bus) Panics() uint64 {
	return b.panicked.Load()
}

// Close stops accepting events, delivers everything already queued and
// waits for the dispatcher to exit. It is safe to call more than once.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.closeMu.Unlock()
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.deliver(event)
	}
}

func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	specific := b.handlers[event.Type]
	all := b.allHandlers
	b.mu.RUnlock()

	for _, h := range specific {
		b.call(h, event)
	}
	for _, h := range all {
		b.call(h, event)
	}
}

func (b *Bus) call(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(1)
		}
	}()
	h(event)
}
