package psqueue

import (
	"sync"
	"time"

	"github.com/treebus/treebus/internals/message"
)

// FIFO is the simple queue variant: a fixed-capacity ring that rejects
// pushes when full. Priority is ignored.
type FIFO struct {
	mu       sync.Mutex
	msgs     []*message.Msg
	head     int
	tail     int
	count    int
	notEmpty sem
}

// NewFIFO creates a FIFO queue holding at most size messages.
func NewFIFO(size int) *FIFO {
	if size <= 0 {
		size = 1
	}
	return &FIFO{
		msgs:     make([]*message.Msg, size),
		notEmpty: newSem(size),
	}
}

// Push enqueues the message. Returns ErrFull when the ring is at capacity;
// the caller then still owns its reference.
func (q *FIFO) Push(m *message.Msg, _ uint8) error {
	q.mu.Lock()
	if q.count == len(q.msgs) {
		q.mu.Unlock()
		return ErrFull
	}
	q.msgs[q.head] = m
	q.head = (q.head + 1) % len(q.msgs)
	q.count++
	q.mu.Unlock()

	q.notEmpty.post()
	return nil
}

// Pull removes the oldest message, waiting per the timeout convention.
func (q *FIFO) Pull(timeout time.Duration) *message.Msg {
	if !q.notEmpty.wait(timeout) {
		return nil
	}
	q.mu.Lock()
	m := q.msgs[q.tail]
	q.msgs[q.tail] = nil
	q.tail = (q.tail + 1) % len(q.msgs)
	q.count--
	q.mu.Unlock()
	return m
}

// Waiting returns the number of messages held.
func (q *FIFO) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
