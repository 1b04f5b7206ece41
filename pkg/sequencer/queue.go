package sequencer

import "sync/atomic"

// QueueSlots is the number of raw slots in an EventQueue.
// One slot always stays empty, so at most QueueSlots-1 events are held.
const QueueSlots = 2048

// QueueCapacity is the number of events an EventQueue can hold at once.
const QueueCapacity = QueueSlots - 1

// EventQueue is a fixed-capacity ring buffer of events.
//
// It is safe for exactly one producer goroutine (Push, Clear) and one
// consumer goroutine (Peek, Pop). Head and tail are published with atomic
// loads and stores; there is no lock and no allocation after construction.
// The zero value is an empty queue.
type EventQueue struct {
	buf  [QueueSlots]Event
	head atomic.Uint32 // next slot to write, owned by the producer
	tail atomic.Uint32 // next slot to read, owned by the consumer
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends e. It returns false and leaves the queue untouched when full.
func (q *EventQueue) Push(e Event) bool {
	head := q.head.Load()
	next := (head + 1) % QueueSlots
	if next == q.tail.Load() {
		return false
	}
	q.buf[head] = e
	q.head.Store(next)
	return true
}

// Peek returns the oldest event without removing it.
func (q *EventQueue) Peek() (Event, bool) {
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return Event{}, false
	}
	return q.buf[tail], true
}

// Pop removes and returns the oldest event.
func (q *EventQueue) Pop() (Event, bool) {
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return Event{}, false
	}
	e := q.buf[tail]
	q.tail.Store((tail + 1) % QueueSlots)
	return e, true
}

// Empty reports whether the queue holds no events.
func (q *EventQueue) Empty() bool {
	return q.tail.Load() == q.head.Load()
}

// IsFull reports whether a Push would fail.
func (q *EventQueue) IsFull() bool {
	return (q.head.Load()+1)%QueueSlots == q.tail.Load()
}

// Size returns the number of events currently held.
func (q *EventQueue) Size() int {
	head, tail := q.head.Load(), q.tail.Load()
	if head >= tail {
		return int(head - tail)
	}
	return int(QueueSlots - (tail - head))
}

// Clear drops every queued event. Only call it while the consumer is idle.
func (q *EventQueue) Clear() {
	q.head.Store(0)
	q.tail.Store(0)
}
