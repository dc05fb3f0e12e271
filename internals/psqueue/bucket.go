package psqueue

import (
	"sync"
	"time"

	"github.com/treebus/treebus/internals/message"
)

// numPriorities is the number of priority buckets (0-9).
const numPriorities = 10

// Bucket is the priority queue variant: ten FIFO buckets sharing a node
// budget of the queue capacity. When the budget is spent, a push evicts
// the newest message of the lowest non-empty bucket of strictly lower
// priority; if no such victim exists the push is rejected.
type Bucket struct {
	mu       sync.Mutex
	buckets  [numPriorities][]*message.Msg
	free     int
	notEmpty sem
}

// NewBucket creates a priority queue holding at most size messages.
func NewBucket(size int) *Bucket {
	if size <= 0 {
		size = 1
	}
	return &Bucket{
		free:     size,
		notEmpty: newSem(size),
	}
}

// Push enqueues the message into the bucket for its priority.
//
// Returns nil when a free slot was consumed, ErrOverflow when a
// lower-priority victim was dropped to make room (the victim's reference
// is released here; the total count is unchanged so the not-empty
// semaphore is not posted), and ErrFull when every lower bucket is empty
// and no slot is free.
func (q *Bucket) Push(m *message.Msg, priority uint8) error {
	if priority >= numPriorities {
		priority = numPriorities - 1
	}

	q.mu.Lock()
	if q.free > 0 {
		q.free--
		q.buckets[priority] = append(q.buckets[priority], m)
		q.mu.Unlock()
		q.notEmpty.post()
		return nil
	}

	for i := 0; i < int(priority); i++ {
		n := len(q.buckets[i])
		if n == 0 {
			continue
		}
		victim := q.buckets[i][n-1]
		q.buckets[i][n-1] = nil
		q.buckets[i] = q.buckets[i][:n-1]
		q.buckets[priority] = append(q.buckets[priority], m)
		q.mu.Unlock()
		victim.Unref()
		return ErrOverflow
	}

	q.mu.Unlock()
	return ErrFull
}

// Pull removes the head of the highest non-empty bucket, waiting per the
// timeout convention. Within a bucket messages come out in push order.
func (q *Bucket) Pull(timeout time.Duration) *message.Msg {
	if !q.notEmpty.wait(timeout) {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := numPriorities - 1; i >= 0; i-- {
		if len(q.buckets[i]) == 0 {
			continue
		}
		m := q.buckets[i][0]
		q.buckets[i][0] = nil
		q.buckets[i] = q.buckets[i][1:]
		q.free++
		return m
	}
	return nil
}

// Waiting returns the number of messages held across all buckets.
func (q *Bucket) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := range q.buckets {
		n += len(q.buckets[i])
	}
	return n
}
