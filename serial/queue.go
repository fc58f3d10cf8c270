package serial

import (
	"fmt"
	"iter"
)

// chunk holds every item enqueued with the same serial, in insertion order.
type chunk[T any] struct {
	serial Serial
	items  []T
}

// Queue is a FIFO of items tagged with serials.
//
// Items must be enqueued with non-decreasing serials. Iterating or clearing
// up to a serial S visits every item tagged with a serial <= S in the order
// they were enqueued.
//
// Queue is not safe for concurrent use.
type Queue[T any] struct {
	chunks []chunk[T]
	count  int
}

// Enqueue appends item tagged with s.
// It panics if s is lower than the serial of the last enqueued item.
func (q *Queue[T]) Enqueue(item T, s Serial) {
	c := q.tail(s)
	c.items = append(c.items, item)
	q.count++
}

// EnqueueAll appends items, in order, all tagged with s.
// An empty items slice leaves the queue unchanged.
func (q *Queue[T]) EnqueueAll(items []T, s Serial) {
	if len(items) == 0 {
		return
	}
	c := q.tail(s)
	c.items = append(c.items, items...)
	q.count += len(items)
}

// tail returns the chunk that accepts items tagged with s, creating it if
// the last chunk belongs to an older serial.
func (q *Queue[T]) tail(s Serial) *chunk[T] {
	if n := len(q.chunks); n > 0 {
		last := &q.chunks[n-1]
		if s < last.serial {
			panic(fmt.Sprintf("serial: enqueue with serial %d after serial %d", s, last.serial))
		}
		if s == last.serial {
			return last
		}
	}
	q.chunks = append(q.chunks, chunk[T]{serial: s})
	return &q.chunks[len(q.chunks)-1]
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.count == 0
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return q.count
}

// FirstSerial returns the serial of the oldest queued item.
// The second result is false when the queue is empty.
func (q *Queue[T]) FirstSerial() (Serial, bool) {
	if len(q.chunks) == 0 {
		return 0, false
	}
	return q.chunks[0].serial, true
}

// All yields every queued item with its serial, oldest first.
func (q *Queue[T]) All() iter.Seq2[Serial, T] {
	return q.UpTo(Max)
}

// UpTo yields every item tagged with a serial <= s, oldest first.
// The queue must not be modified while the iteration is running.
func (q *Queue[T]) UpTo(s Serial) iter.Seq2[Serial, T] {
	return func(yield func(Serial, T) bool) {
		for i := range q.chunks {
			c := &q.chunks[i]
			if c.serial > s {
				return
			}
			for _, item := range c.items {
				if !yield(c.serial, item) {
					return
				}
			}
		}
	}
}

// Clear removes every item.
func (q *Queue[T]) Clear() {
	clear(q.chunks)
	q.chunks = q.chunks[:0]
	q.count = 0
}

// ClearUpTo removes every item tagged with a serial <= s.
func (q *Queue[T]) ClearUpTo(s Serial) {
	n := 0
	for n < len(q.chunks) && q.chunks[n].serial <= s {
		q.count -= len(q.chunks[n].items)
		n++
	}
	if n == 0 {
		return
	}
	remaining := copy(q.chunks, q.chunks[n:])
	clear(q.chunks[remaining:])
	q.chunks = q.chunks[:remaining]
}
