// Package broker implements the hierarchical topic index: subscription
// management, publication routing, sticky retention and request/response
// correlation. A single mutex serializes every mutation; subscriber queue
// pulls take only the queue's own lock.
package broker

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/treebus/treebus/internals/message"
	"github.com/treebus/treebus/internals/metrics"
	"github.com/treebus/treebus/internals/psqueue"
)

// topicEntry exists only while it has at least one subscriber or a sticky
// message. Subscriptions are kept in insertion order, which is also the
// delivery order within the topic level.
type topicEntry struct {
	topic  string
	subs   []*subscription
	sticky *message.Msg
}

// subscription is the half of a subscriber/topic pair that lives on the
// topic side. Its twin is the entry in Subscriber.topics; both are created
// and destroyed together under the broker lock.
type subscription struct {
	su       *Subscriber
	hidden   bool
	onEmpty  bool
	priority uint8
}

// Broker is the process-wide topic index.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topicEntry

	rtopicCtr uint32
	liveSubs  int32

	newQueue func(size int) psqueue.Queue
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// Option configures a Broker.
type Option func(*Broker)

// WithQueue selects the queue variant used for new subscribers. The
// default is the FIFO ring.
func WithQueue(factory func(size int) psqueue.Queue) Option {
	return func(b *Broker) { b.newQueue = factory }
}

// WithLogger attaches a structured logger. The default is a nop logger so
// the broker stays silent when embedded.
func WithLogger(log *zap.Logger) Option {
	return func(b *Broker) { b.log = log }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		topics:   make(map[string]*topicEntry),
		newQueue: func(size int) psqueue.Queue { return psqueue.NewFIFO(size) },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close drops every sticky message and the topic entries they kept alive.
// Entries still holding subscribers survive until those unsubscribe.
func (b *Broker) Close() {
	b.CleanSticky("")
}

// LiveSubscribers returns the number of subscribers currently allocated.
func (b *Broker) LiveSubscribers() int {
	return int(atomic.LoadInt32(&b.liveSubs))
}

func (b *Broker) fetchTopic(topic string) *topicEntry {
	return b.topics[topic]
}

func (b *Broker) createTopic(topic string) *topicEntry {
	tm := &topicEntry{topic: topic}
	b.topics[topic] = tm
	return tm
}

func (b *Broker) fetchOrCreateTopic(topic string) *topicEntry {
	if tm := b.topics[topic]; tm != nil {
		return tm
	}
	return b.createTopic(topic)
}

// removeTopicIfEmpty drops the entry once it has neither subscribers nor a
// sticky message. Reports whether it was removed.
func (b *Broker) removeTopicIfEmpty(tm *topicEntry) bool {
	if len(tm.subs) == 0 && tm.sticky == nil {
		delete(b.topics, tm.topic)
		return true
	}
	return false
}

// pushToQueue hands one reference of msg to the subscriber's queue and
// fires the notification callbacks on success. Reports whether the message
// was enqueued. Callers hold the broker lock.
func (b *Broker) pushToQueue(su *Subscriber, msg *message.Msg, priority uint8) bool {
	msg.Ref()
	switch err := su.q.Push(msg, priority); err {
	case psqueue.ErrFull:
		msg.Unref()
		fallthrough
	case psqueue.ErrOverflow:
		atomic.AddUint32(&su.overflow, 1)
		b.countDropped()
		return false
	}

	b.countDelivered()
	if su.nonEmptyCb != nil && su.q.Waiting() == 1 {
		su.nonEmptyCb(su)
	}
	if su.newMsgCb != nil {
		su.newMsgCb(su)
	}
	return true
}

// pushChildSticky replays every sticky retained at prefix or below into the
// subscriber's queue. An empty prefix matches all topics.
func (b *Broker) pushChildSticky(su *Subscriber, prefix string, priority uint8) {
	for _, tm := range b.topics {
		if tm.sticky != nil && topicAtOrBelow(tm.topic, prefix) {
			b.pushToQueue(su, tm.sticky, priority)
		}
	}
}

// topicAtOrBelow reports whether topic equals prefix or sits under it in
// the dotted hierarchy. An empty prefix matches everything.
func topicAtOrBelow(topic, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(topic, prefix) {
		return false
	}
	return len(topic) == len(prefix) || topic[len(prefix)] == '.'
}

// parentTopic truncates the trailing segment: "a.b.c" -> "a.b", "a" -> "".
func parentTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return topic[:i]
	}
	return ""
}

// stripFlagSuffix cuts the flag segment off a topic spec: everything up to
// the first space is the actual topic.
func stripFlagSuffix(spec string) string {
	if i := strings.IndexByte(spec, ' '); i >= 0 {
		return spec[:i]
	}
	return spec
}

// Publish routes the message to the subscribers of its topic and of every
// ancestor level up to the root, honoring the Sticky and NonRecursive
// control bits. The caller's reference is consumed. Returns the number of
// non-hidden subscribers that received the message.
//
// Sticky handling applies to the exact topic only: a Sticky publish
// replaces the retained message, a plain publish clears any retained one.
func (b *Broker) Publish(msg *message.Msg) int {
	if msg == nil {
		return 0
	}
	topic := stripFlagSuffix(msg.Topic())
	delivered := 0

	b.mu.Lock()
	first := true
	for {
		tm := b.fetchTopic(topic)
		if first {
			first = false
			if msg.Flags()&message.Sticky != 0 {
				if tm == nil {
					tm = b.createTopic(topic)
				}
				if tm.sticky != nil {
					tm.sticky.Unref()
				}
				tm.sticky = msg.Ref()
			} else if tm != nil && tm.sticky != nil {
				tm.sticky.Unref()
				tm.sticky = nil
				if b.removeTopicIfEmpty(tm) {
					tm = nil
				}
			}
		}
		if tm != nil {
			for _, sl := range tm.subs {
				if sl.onEmpty && sl.su.q.Waiting() != 0 {
					continue
				}
				if b.pushToQueue(sl.su, msg, sl.priority) && !sl.hidden {
					delivered++
				}
			}
		}
		if msg.Flags()&message.NonRecursive != 0 || topic == "" {
			break
		}
		topic = parentTopic(topic)
	}
	b.mu.Unlock()

	b.countPublished(msg.Topic())
	b.log.Debug("published",
		zap.String("topic", msg.Topic()),
		zap.Int("delivered", delivered))
	msg.Unref()
	return delivered
}

// SubsCount walks the hierarchy exactly like Publish and sums the
// non-hidden subscriber counts at each level. The root level is skipped.
func (b *Broker) SubsCount(topic string) int {
	topic = stripFlagSuffix(topic)
	if topic == "" {
		return 0
	}
	count := 0
	b.mu.Lock()
	for topic != "" {
		if tm := b.fetchTopic(topic); tm != nil {
			for _, sl := range tm.subs {
				if !sl.hidden {
					count++
				}
			}
		}
		topic = parentTopic(topic)
	}
	b.mu.Unlock()
	return count
}

// CleanSticky drops the sticky message of every topic at prefix or below.
// An empty prefix cleans all topics.
func (b *Broker) CleanSticky(prefix string) {
	b.mu.Lock()
	for _, tm := range b.topics {
		if tm.sticky != nil && topicAtOrBelow(tm.topic, prefix) {
			tm.sticky.Unref()
			tm.sticky = nil
			b.removeTopicIfEmpty(tm)
		}
	}
	b.mu.Unlock()
}

func (b *Broker) countPublished(topic string) {
	if b.metrics != nil {
		b.metrics.Published.WithLabelValues(stripFlagSuffix(topic)).Inc()
	}
}

func (b *Broker) countDelivered() {
	if b.metrics != nil {
		b.metrics.Delivered.Inc()
	}
}

func (b *Broker) countDropped() {
	if b.metrics != nil {
		b.metrics.Dropped.Inc()
	}
}
