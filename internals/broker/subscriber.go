package broker

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/treebus/treebus/internals/message"
	"github.com/treebus/treebus/internals/psqueue"
)

// SubFlags are the typed subscription options. A flag segment inside the
// topic spec string overrides the corresponding field.
type SubFlags struct {
	// Hidden subscriptions receive messages but do not count toward
	// Publish's return value or SubsCount.
	Hidden bool
	// NoSticky suppresses delivery of the retained message at subscribe
	// time.
	NoSticky bool
	// ChildSticky delivers, at subscribe time, every sticky retained at
	// the subscribed topic or below it.
	ChildSticky bool
	// OnEmpty makes the publisher skip this subscriber while its queue is
	// non-empty.
	OnEmpty bool
	// Priority 0..9 is the queue priority for messages from this
	// subscription; higher pulls first on the bucket queue variant.
	Priority uint8
}

// parseSpec splits "topic[ flags]" and folds the in-string flag characters
// over the defaults. Unknown characters are ignored.
func parseSpec(spec string, def SubFlags) (string, SubFlags) {
	fl := def
	i := strings.IndexByte(spec, ' ')
	if i < 0 {
		return spec, fl
	}
	topic := spec[:i]
	for j := i + 1; j < len(spec); j++ {
		switch spec[j] {
		case 'h':
			fl.Hidden = true
		case 's':
			fl.NoSticky = true
		case 'S':
			fl.ChildSticky = true
		case 'e':
			fl.OnEmpty = true
		case 'p':
			if j+1 < len(spec) && spec[j+1] >= '0' && spec[j+1] <= '9' {
				fl.Priority = spec[j+1] - '0'
			}
		}
	}
	return topic, fl
}

// Subscriber owns a bounded queue and a set of subscriptions. All methods
// that touch the topic index take the broker lock; Get does not.
type Subscriber struct {
	b      *Broker
	q      psqueue.Queue
	topics []*topicEntry

	overflow uint32

	newMsgCb   func(*Subscriber)
	nonEmptyCb func(*Subscriber)

	userData any
}

// NewSubscriber allocates a subscriber with a queue of the given capacity
// and subscribes it to each topic spec.
func (b *Broker) NewSubscriber(capacity int, topics ...string) *Subscriber {
	su := &Subscriber{
		b: b,
		q: b.newQueue(capacity),
	}
	su.SubscribeMany(topics)
	atomic.AddInt32(&b.liveSubs, 1)
	if b.metrics != nil {
		b.metrics.LiveSubscribers.Inc()
	}
	return su
}

// Free detaches every subscription, releases all queued messages and
// retires the subscriber. No other goroutine may be blocked in Get when
// Free runs.
func (su *Subscriber) Free() {
	su.UnsubscribeAll()
	su.Flush()
	atomic.AddInt32(&su.b.liveSubs, -1)
	if su.b.metrics != nil {
		su.b.metrics.LiveSubscribers.Dec()
	}
}

// Subscribe attaches the subscriber to a topic spec of the form
// "topic[ flags]" where flags is a run of h, s, S, e and p<digit>
// characters. Returns ErrAlreadySubscribed for a duplicate topic.
func (su *Subscriber) Subscribe(spec string) error {
	return su.SubscribeFlags(spec, SubFlags{})
}

// SubscribeFlags is Subscribe with explicit defaults; any flag segment in
// the spec string takes precedence over def.
//
// Unless NoSticky is set, the topic's retained message (or, with
// ChildSticky, every retained message at or below the topic) is pushed to
// the queue before Subscribe returns.
func (su *Subscriber) SubscribeFlags(spec string, def SubFlags) error {
	topic, fl := parseSpec(spec, def)

	b := su.b
	b.mu.Lock()
	defer b.mu.Unlock()

	tm := b.fetchOrCreateTopic(topic)
	for _, sl := range tm.subs {
		if sl.su == su {
			return ErrAlreadySubscribed
		}
	}
	tm.subs = append(tm.subs, &subscription{
		su:       su,
		hidden:   fl.Hidden,
		onEmpty:  fl.OnEmpty,
		priority: fl.Priority,
	})
	su.topics = append(su.topics, tm)

	if !fl.NoSticky {
		if fl.ChildSticky {
			b.pushChildSticky(su, topic, fl.Priority)
		} else if tm.sticky != nil {
			b.pushToQueue(su, tm.sticky, fl.Priority)
		}
	}
	return nil
}

// SubscribeMany subscribes to each spec and returns how many succeeded.
func (su *Subscriber) SubscribeMany(specs []string) int {
	n := 0
	for _, spec := range specs {
		if su.Subscribe(spec) == nil {
			n++
		}
	}
	return n
}

// Unsubscribe detaches the subscriber from a topic. Any flag segment in
// the spec is ignored. Returns ErrNotSubscribed when the subscriber does
// not hold the topic.
func (su *Subscriber) Unsubscribe(spec string) error {
	topic := stripFlagSuffix(spec)

	b := su.b
	b.mu.Lock()
	defer b.mu.Unlock()

	tm := b.fetchTopic(topic)
	if tm == nil {
		return ErrNotSubscribed
	}
	if !tm.removeSubscriber(su) {
		return ErrNotSubscribed
	}
	b.removeTopicIfEmpty(tm)
	su.forgetTopic(tm)
	return nil
}

// UnsubscribeMany unsubscribes from each spec and returns how many
// succeeded.
func (su *Subscriber) UnsubscribeMany(specs []string) int {
	n := 0
	for _, spec := range specs {
		if su.Unsubscribe(spec) == nil {
			n++
		}
	}
	return n
}

// UnsubscribeAll detaches every subscription and returns the count.
func (su *Subscriber) UnsubscribeAll() int {
	b := su.b
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(su.topics)
	for _, tm := range su.topics {
		tm.removeSubscriber(su)
		b.removeTopicIfEmpty(tm)
	}
	su.topics = nil
	return count
}

func (tm *topicEntry) removeSubscriber(su *Subscriber) bool {
	for i, sl := range tm.subs {
		if sl.su == su {
			tm.subs = append(tm.subs[:i], tm.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (su *Subscriber) forgetTopic(tm *topicEntry) {
	for i, t := range su.topics {
		if t == tm {
			su.topics = append(su.topics[:i], su.topics[i+1:]...)
			return
		}
	}
}

// Get pulls the next message, waiting per the timeout convention:
// negative waits forever, zero polls, positive waits up to the duration.
// The caller owns the returned reference.
func (su *Subscriber) Get(timeout time.Duration) *message.Msg {
	return su.q.Pull(timeout)
}

// Flush drains the queue, releasing each message, and returns the count.
func (su *Subscriber) Flush() int {
	n := 0
	for {
		m := su.q.Pull(0)
		if m == nil {
			return n
		}
		m.Unref()
		n++
	}
}

// Waiting returns the number of queued messages.
func (su *Subscriber) Waiting() int {
	return su.q.Waiting()
}

// NumSubs returns the number of topics the subscriber holds.
func (su *Subscriber) NumSubs() int {
	su.b.mu.Lock()
	defer su.b.mu.Unlock()
	return len(su.topics)
}

// Overflow returns the number of messages lost to a full or overflowing
// queue since the last call, resetting the counter.
func (su *Subscriber) Overflow() int {
	return int(atomic.SwapUint32(&su.overflow, 0))
}

// SetNewMsgCb installs a callback fired after every accepted push. If the
// queue already holds messages the callback fires once immediately.
//
// Callbacks run on the publisher's goroutine with the broker lock held:
// they must not call back into broker mutating operations. Reading the
// message or the subscriber's user data is safe.
func (su *Subscriber) SetNewMsgCb(cb func(*Subscriber)) {
	su.b.mu.Lock()
	defer su.b.mu.Unlock()
	su.newMsgCb = cb
	if cb != nil && su.q.Waiting() > 0 {
		cb(su)
	}
}

// SetNonEmptyCb installs a callback fired when an accepted push takes the
// queue from empty to one message. If the queue already holds messages the
// callback fires once immediately. The reentrancy rule of SetNewMsgCb
// applies.
func (su *Subscriber) SetNonEmptyCb(cb func(*Subscriber)) {
	su.b.mu.Lock()
	defer su.b.mu.Unlock()
	su.nonEmptyCb = cb
	if cb != nil && su.q.Waiting() > 0 {
		cb(su)
	}
}

// SetUserData attaches an opaque value to the subscriber.
func (su *Subscriber) SetUserData(v any) { su.userData = v }

// UserData returns the value set with SetUserData.
func (su *Subscriber) UserData() any { return su.userData }
