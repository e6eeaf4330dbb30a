package sim

import "container/heap"

// Event is a time-stamped action executed by the simulation kernel.
// Events are created and enqueued, dequeued exactly once, and never
// mutated (§3 Data Model).
type Event interface {
	// Timestamp is the simulated time at which this event fires. Virtual
	// time is continuous (§3: latencies and demands like 0.5 and 20.5
	// appear throughout the worked examples), represented as float64
	// ticks rather than an integer counter.
	Timestamp() float64
	// Seq is the insertion-order sequence number assigned at schedule
	// time; it breaks ties between events scheduled for the same
	// Timestamp (I2).
	Seq() uint64
	// Canceled reports whether this event has been tombstoned.
	Canceled() bool
	// cancel marks the event as tombstoned; called only by Context.Cancel.
	cancel()
	// Execute runs the event's effect against the simulation context.
	Execute(ctx *Context)
}

// BaseEvent provides the bookkeeping fields (timestamp, seq, tombstone)
// shared by every concrete event type. Mirrors the teacher's BaseEvent
// embedding pattern (sim/cluster/events.go).
type BaseEvent struct {
	timestamp float64
	seq       uint64
	canceled  bool
}

func (e *BaseEvent) Timestamp() float64 { return e.timestamp }
func (e *BaseEvent) Seq() uint64        { return e.seq }
func (e *BaseEvent) Canceled() bool     { return e.canceled }
func (e *BaseEvent) cancel()            { e.canceled = true }

// eventHeap implements container/heap.Interface over []Event, ordered by
// (Timestamp asc, Seq asc) — the strict ordering §4.1/§5 require.
type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Timestamp() != h[j].Timestamp() {
		return h[i].Timestamp() < h[j].Timestamp()
	}
	return h[i].Seq() < h[j].Seq()
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// EventQueue is the priority queue of (time, seq, event) entries driving
// the simulation (§4.1). Cancellation tombstones an entry rather than
// removing it from the heap immediately; PopNext skips tombstones without
// advancing the clock.
type EventQueue struct {
	heap eventHeap
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{heap: make(eventHeap, 0)}
	heap.Init(&q.heap)
	return q
}

// Schedule adds an event to the queue. Callers must not call this
// directly once a simulation is running — build the event's BaseEvent
// with Context.NewBaseEvent, which enforces the time >= now constraint
// and assigns Seq, and enqueue it with Context.Schedule.
func (q *EventQueue) Schedule(e Event) {
	heap.Push(&q.heap, e)
}

// Len reports the number of (possibly tombstoned) entries still queued.
func (q *EventQueue) Len() int { return q.heap.Len() }

// PopNext removes and returns the next non-canceled event, or nil if the
// queue is empty. Tombstoned entries are discarded silently and do not
// count as "the next event" for clock-advance purposes.
func (q *EventQueue) PopNext() Event {
	for q.heap.Len() > 0 {
		e := heap.Pop(&q.heap).(Event)
		if !e.Canceled() {
			return e
		}
	}
	return nil
}

// Peek returns the next non-canceled event without removing it, skipping
// (and discarding) any tombstoned head entries it encounters.
func (q *EventQueue) Peek() Event {
	for q.heap.Len() > 0 {
		e := q.heap[0]
		if !e.Canceled() {
			return e
		}
		heap.Pop(&q.heap)
	}
	return nil
}

// Cancel tombstones e. Idempotent: canceling an already-canceled or
// already-dequeued event is a no-op. O(1) — the entry is skipped lazily
// on a future Pop/Peek rather than searched for and removed immediately.
func (q *EventQueue) Cancel(e Event) {
	if e != nil {
		e.cancel()
	}
}
