package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubEvent struct {
	BaseEvent
	ran *bool
}

func (e *stubEvent) Execute(ctx *Context) {
	if e.ran != nil {
		*e.ran = true
	}
}

func TestEventQueue_PopNext_OrdersByTimeThenSeq(t *testing.T) {
	// GIVEN three events scheduled out of timestamp order, two sharing a
	// timestamp
	q := NewEventQueue()
	a := &stubEvent{BaseEvent: BaseEvent{timestamp: 5, seq: 2}}
	b := &stubEvent{BaseEvent: BaseEvent{timestamp: 5, seq: 1}}
	c := &stubEvent{BaseEvent: BaseEvent{timestamp: 1, seq: 3}}
	q.Schedule(a)
	q.Schedule(b)
	q.Schedule(c)

	// WHEN popped in sequence
	// THEN order is (time asc, seq asc): c, b, a
	assert.Same(t, Event(c), q.PopNext())
	assert.Same(t, Event(b), q.PopNext())
	assert.Same(t, Event(a), q.PopNext())
	assert.Nil(t, q.PopNext())
}

func TestEventQueue_Cancel_SkipsTombstonedEntry(t *testing.T) {
	// GIVEN two scheduled events
	q := NewEventQueue()
	a := &stubEvent{BaseEvent: BaseEvent{timestamp: 1, seq: 1}}
	b := &stubEvent{BaseEvent: BaseEvent{timestamp: 2, seq: 2}}
	q.Schedule(a)
	q.Schedule(b)

	// WHEN the earlier one is canceled before being popped
	q.Cancel(a)

	// THEN PopNext silently skips it and returns the later event
	assert.Same(t, Event(b), q.PopNext())
	assert.Nil(t, q.PopNext())
}

func TestEventQueue_Cancel_Idempotent(t *testing.T) {
	// GIVEN an already-canceled event
	q := NewEventQueue()
	a := &stubEvent{BaseEvent: BaseEvent{timestamp: 1, seq: 1}}
	q.Schedule(a)
	q.Cancel(a)

	// WHEN canceled again, and on a nil event
	assert.NotPanics(t, func() {
		q.Cancel(a)
		q.Cancel(nil)
	})
}

func TestEventQueue_Peek_DiscardsLeadingTombstones(t *testing.T) {
	// GIVEN two events, the earlier canceled
	q := NewEventQueue()
	a := &stubEvent{BaseEvent: BaseEvent{timestamp: 1, seq: 1}}
	b := &stubEvent{BaseEvent: BaseEvent{timestamp: 2, seq: 2}}
	q.Schedule(a)
	q.Schedule(b)
	q.Cancel(a)

	// WHEN Peek is called
	// THEN it reports b without removing it
	assert.Same(t, Event(b), q.Peek())
	assert.Same(t, Event(b), q.PopNext())
}
