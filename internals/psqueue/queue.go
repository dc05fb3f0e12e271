// Package psqueue provides the bounded per-subscriber message queues used
// by the broker. Two variants satisfy the same contract: a plain FIFO ring
// and a ten-bucket priority queue that drops lower-priority messages when
// its node budget runs out.
package psqueue

import (
	"errors"
	"time"

	"github.com/treebus/treebus/internals/message"
)

var (
	// ErrFull means the push was rejected and the caller keeps its
	// reference to the message.
	ErrFull = errors.New("queue full")

	// ErrOverflow means the queue dropped a lower-priority message
	// internally and the pushed message was enqueued.
	ErrOverflow = errors.New("queue overflow")
)

// Forever makes Pull block until a message arrives.
const Forever time.Duration = -1

// Queue is a bounded container of message references.
//
// Pull's timeout follows the broker convention: negative waits forever,
// zero polls without blocking, positive waits up to that duration. An
// expired timeout returns nil.
type Queue interface {
	Push(m *message.Msg, priority uint8) error
	Pull(timeout time.Duration) *message.Msg
	Waiting() int
}

// sem is a counting semaphore with a timed wait, built on a buffered
// channel. Capacity bounds the count, which the queues guarantee by
// posting at most once per held message.
type sem chan struct{}

func newSem(capacity int) sem {
	return make(sem, capacity)
}

func (s sem) post() {
	s <- struct{}{}
}

// wait consumes one count. Returns false when the timeout expires first.
func (s sem) wait(timeout time.Duration) bool {
	if timeout == 0 {
		select {
		case <-s:
			return true
		default:
			return false
		}
	}
	if timeout < 0 {
		<-s
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s:
		return true
	case <-t.C:
		return false
	}
}
