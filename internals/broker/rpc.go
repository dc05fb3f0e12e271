package broker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/treebus/treebus/internals/message"
)

// Call publishes the message with a freshly generated response topic and
// waits for the reply. Returns nil immediately when no non-hidden
// subscriber received the message, or when the timeout expires. The message reference is
// consumed either way.
func (b *Broker) Call(msg *message.Msg, timeout time.Duration) *message.Msg {
	rtopic := fmt.Sprintf("$r.%d", atomic.AddUint32(&b.rtopicCtr, 1))
	msg.SetRTopic(rtopic)

	su := b.NewSubscriber(1, rtopic)
	defer su.Free()

	if b.Publish(msg) == 0 {
		return nil
	}
	return su.Get(timeout)
}

// WaitOne subscribes to the topic, waits for a single message and tears
// the temporary subscriber down. Returns nil on timeout.
func (b *Broker) WaitOne(topic string, timeout time.Duration) *message.Msg {
	su := b.NewSubscriber(1, topic)
	defer su.Free()
	return su.Get(timeout)
}

// Typed publish shorthands, mirroring the common case of firing a single
// value at a topic. Extra flags are OR-ed into the message flags word.

func combine(typ message.Flags, flags []message.Flags) message.Flags {
	for _, fl := range flags {
		typ |= fl
	}
	return typ
}

// PublishInt publishes an integer value.
func (b *Broker) PublishInt(topic string, v int64, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeInt, flags), v))
}

// PublishFloat publishes a double value.
func (b *Broker) PublishFloat(topic string, v float64, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeDbl, flags), v))
}

// PublishBool publishes a boolean value.
func (b *Broker) PublishBool(topic string, v bool, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeBool, flags), v))
}

// PublishStr publishes a string value.
func (b *Broker) PublishStr(topic string, v string, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeStr, flags), v))
}

// PublishBuf publishes a buffer value. The encoding tag, if any, rides in
// flags.
func (b *Broker) PublishBuf(topic string, buf message.Buf, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeBuf, flags), buf))
}

// PublishErr publishes an error value.
func (b *Broker) PublishErr(topic string, id int, desc string, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeErr, flags), id, desc))
}

// PublishNil publishes a nil value.
func (b *Broker) PublishNil(topic string, flags ...message.Flags) int {
	return b.Publish(message.New(topic, combine(message.TypeNil, flags)))
}

// CallInt publishes an integer request and waits for the response.
func (b *Broker) CallInt(topic string, v int64, timeout time.Duration) *message.Msg {
	return b.Call(message.New(topic, message.TypeInt, v), timeout)
}

// CallStr publishes a string request and waits for the response.
func (b *Broker) CallStr(topic string, v string, timeout time.Duration) *message.Msg {
	return b.Call(message.New(topic, message.TypeStr, v), timeout)
}

// CallNil publishes an empty request and waits for the response.
func (b *Broker) CallNil(topic string, timeout time.Duration) *message.Msg {
	return b.Call(message.New(topic, message.TypeNil), timeout)
}
