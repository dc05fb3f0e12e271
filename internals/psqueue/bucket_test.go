package psqueue

import (
	"testing"
	"time"

	"github.com/treebus/treebus/internals/message"
)

func TestBucket_PriorityOrder(t *testing.T) {
	q := NewBucket(10)

	q.Push(newTestMsg(t, 1), 0)
	q.Push(newTestMsg(t, 2), 9)
	q.Push(newTestMsg(t, 3), 5)
	q.Push(newTestMsg(t, 4), 9)

	want := []int64{2, 4, 3, 1} // descending priority, FIFO within a bucket
	for _, expected := range want {
		m := q.Pull(0)
		if m == nil {
			t.Fatal("Pull returned nil")
		}
		if m.Int() != expected {
			t.Errorf("Expected %d, got %d", expected, m.Int())
		}
		m.Unref()
	}
}

func TestBucket_OverflowDropsLowerPriority(t *testing.T) {
	before := message.Live()
	q := NewBucket(2)

	q.Push(newTestMsg(t, 1), 1)
	q.Push(newTestMsg(t, 2), 1)

	// No free node: the push must evict from the lower bucket.
	if err := q.Push(newTestMsg(t, 3), 5); err != ErrOverflow {
		t.Fatalf("Expected ErrOverflow, got %v", err)
	}
	if q.Waiting() != 2 {
		t.Errorf("Expected 2 waiting after overflow, got %d", q.Waiting())
	}

	// The victim is the newest message of the lowest non-empty bucket.
	m := q.Pull(0)
	if m.Int() != 3 {
		t.Errorf("Expected high-priority message first, got %d", m.Int())
	}
	m.Unref()
	m = q.Pull(0)
	if m.Int() != 1 {
		t.Errorf("Expected oldest low-priority survivor, got %d", m.Int())
	}
	m.Unref()

	if message.Live() != before {
		t.Errorf("Victim message leaked: %d live", message.Live()-before)
	}
}

func TestBucket_FullWhenNoVictim(t *testing.T) {
	q := NewBucket(2)

	q.Push(newTestMsg(t, 1), 5)
	q.Push(newTestMsg(t, 2), 5)

	// Same priority is not a victim: strictly lower buckets only.
	m3 := newTestMsg(t, 3)
	if err := q.Push(m3, 5); err != ErrFull {
		t.Fatalf("Expected ErrFull, got %v", err)
	}
	m3.Unref()

	// Lower priority than everything queued: also FULL.
	m4 := newTestMsg(t, 4)
	if err := q.Push(m4, 0); err != ErrFull {
		t.Fatalf("Expected ErrFull for lower-priority push, got %v", err)
	}
	m4.Unref()

	q.Pull(0).Unref()
	q.Pull(0).Unref()
}

func TestBucket_OverflowDoesNotPostSemaphore(t *testing.T) {
	q := NewBucket(1)

	q.Push(newTestMsg(t, 1), 0)
	if err := q.Push(newTestMsg(t, 2), 5); err != ErrOverflow {
		t.Fatalf("Expected ErrOverflow, got %v", err)
	}

	// Exactly one message is pullable; a second non-blocking pull must
	// return nil rather than finding a stale semaphore count.
	m := q.Pull(0)
	if m == nil || m.Int() != 2 {
		t.Fatalf("Expected surviving message 2, got %v", m)
	}
	m.Unref()
	if m := q.Pull(0); m != nil {
		t.Error("Queue should be empty after draining")
	}
}

func TestBucket_FreeNodeRecycling(t *testing.T) {
	q := NewBucket(2)

	for round := 0; round < 5; round++ {
		if err := q.Push(newTestMsg(t, 1), 3); err != nil {
			t.Fatalf("Round %d: push failed: %v", round, err)
		}
		m := q.Pull(0)
		if m == nil {
			t.Fatalf("Round %d: pull returned nil", round)
		}
		m.Unref()
	}
	if q.Waiting() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Waiting())
	}
}

func TestBucket_PullTimeout(t *testing.T) {
	q := NewBucket(1)

	start := time.Now()
	if m := q.Pull(50 * time.Millisecond); m != nil {
		t.Error("Timed pull on empty queue must return nil")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Timed pull returned too early: %v", elapsed)
	}

	done := make(chan *message.Msg, 1)
	go func() { done <- q.Pull(Forever) }()
	time.Sleep(20 * time.Millisecond)
	q.Push(newTestMsg(t, 9), 9)

	select {
	case m := <-done:
		if m == nil || m.Int() != 9 {
			t.Errorf("Blocked pull got wrong message: %v", m)
		}
		m.Unref()
	case <-time.After(time.Second):
		t.Fatal("Blocked pull never woke up")
	}
}

func TestBucket_PriorityClamped(t *testing.T) {
	q := NewBucket(2)
	if err := q.Push(newTestMsg(t, 1), 200); err != nil {
		t.Fatalf("Push with out-of-range priority failed: %v", err)
	}
	m := q.Pull(0)
	if m == nil {
		t.Fatal("Pull returned nil")
	}
	m.Unref()
}
