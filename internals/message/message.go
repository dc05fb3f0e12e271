// Package message implements the reference-counted message record shared
// between publishers and subscriber queues. A message carries a topic, an
// optional response topic, a 32-bit flags word and a tagged value. The
// reference counter is maintained with atomic operations; the last Unref
// runs the value teardown.
package message

import (
	"strings"
	"sync/atomic"
)

// Flags is the message flags word. The low byte carries control bits,
// bits 8-11 the value type tag and bits 16-19 the payload encoding tag.
type Flags uint32

const (
	// Sticky retains the message on its topic and replays it to new
	// subscribers of that topic.
	Sticky Flags = 1 << 0
	// NonRecursive delivers only to the exact topic, not to parent levels.
	NonRecursive Flags = 1 << 1
	// External marks a message that entered through an external bridge.
	// The broker carries the bit but never interprets it.
	External Flags = 1 << 2
	// Untrusted marks a message from an unauthenticated source. Carried,
	// never interpreted.
	Untrusted Flags = 1 << 3

	MaskControl Flags = 0x000000FF
)

// Value type tags.
const (
	TypeInt  Flags = 0x00000100
	TypeDbl  Flags = 0x00000200
	TypePtr  Flags = 0x00000300
	TypeStr  Flags = 0x00000400
	TypeBuf  Flags = 0x00000500
	TypeBool Flags = 0x00000600
	TypeErr  Flags = 0x00000700
	TypeNil  Flags = 0x00000800

	MaskType Flags = 0x00000F00
)

// Buffer payload encoding tags. Opaque to the broker.
const (
	EncRaw      Flags = 0x00000000
	EncMsgpack  Flags = 0x00010000
	EncJSON     Flags = 0x00020000
	EncBSON     Flags = 0x00030000
	EncYAML     Flags = 0x00040000
	EncProtobuf Flags = 0x00050000
	EncXML      Flags = 0x00060000

	MaskEnc Flags = 0x000F0000
)

// MaskValue selects the bits replaced by SetValue.
const MaskValue = MaskType | MaskEnc

// Buf is an owned binary payload. Dtor, when non-nil, is invoked with the
// data when the last reference to the holding message is dropped.
type Buf struct {
	Data []byte
	Dtor func([]byte)
}

// Err is an error payload: a numeric id plus an owned description.
type Err struct {
	ID   int
	Desc string
}

// Msg is a heap-allocated message. Apart from the reference counter it is
// immutable once published; the setters exist for the window between
// construction and Publish.
type Msg struct {
	refs   int32
	topic  string
	rtopic string
	flags  Flags

	// Priority rides with the message for the producer's own use. Queue
	// priority comes from the subscription, not from here; the broker
	// carries this field without interpreting it.
	Priority uint8

	intVal  int64
	dblVal  float64
	boolVal bool
	ptrVal  any
	strVal  string
	bufVal  Buf
	errVal  Err
}

var liveCount int32

// Live returns the number of messages currently held by at least one
// reference, process-wide.
func Live() int {
	return int(atomic.LoadInt32(&liveCount))
}

// New creates a message with reference count 1. The value arguments depend
// on the type tag in flags:
//
//	TypeInt   int / int64
//	TypeDbl   float64
//	TypeBool  bool
//	TypeStr   string
//	TypePtr   any opaque value
//	TypeBuf   Buf, or []byte (optionally followed by a func([]byte) dtor)
//	TypeErr   Err, or (int, string)
//	TypeNil   no arguments
func New(topic string, flags Flags, args ...any) *Msg {
	m := &Msg{
		refs:  1,
		topic: topic,
		flags: flags &^ MaskValue,
	}
	m.setValue(flags, args)
	atomic.AddInt32(&liveCount, 1)
	return m
}

// Ref atomically increments the reference counter and returns the same
// handle. Safe on nil.
func (m *Msg) Ref() *Msg {
	if m != nil {
		atomic.AddInt32(&m.refs, 1)
	}
	return m
}

// Unref atomically decrements the reference counter. Dropping the last
// reference runs the value teardown (buffer destructors). Safe on nil.
func (m *Msg) Unref() {
	if m == nil {
		return
	}
	if atomic.AddInt32(&m.refs, -1) == 0 {
		m.freeValue()
		atomic.AddInt32(&liveCount, -1)
	}
}

// Dup deep-copies the message: topic, response topic and any owned payload.
// Buffer data is copied into a fresh slice owned by the runtime, so the
// duplicate carries no destructor. The copy starts with reference count 1.
func (m *Msg) Dup() *Msg {
	d := &Msg{
		refs:     1,
		topic:    m.topic,
		rtopic:   m.rtopic,
		flags:    m.flags,
		Priority: m.Priority,
		intVal:   m.intVal,
		dblVal:   m.dblVal,
		boolVal:  m.boolVal,
		ptrVal:   m.ptrVal,
		strVal:   m.strVal,
		errVal:   m.errVal,
	}
	if m.IsBuf() {
		data := make([]byte, len(m.bufVal.Data))
		copy(data, m.bufVal.Data)
		d.bufVal = Buf{Data: data}
	}
	atomic.AddInt32(&liveCount, 1)
	return d
}

// Topic returns the message topic.
func (m *Msg) Topic() string { return m.topic }

// RTopic returns the response topic, or "" when none is set.
func (m *Msg) RTopic() string { return m.rtopic }

// Flags returns the full flags word.
func (m *Msg) Flags() Flags { return m.flags }

// SetTopic replaces the message topic.
func (m *Msg) SetTopic(topic string) { m.topic = topic }

// SetRTopic replaces the response topic. An empty string clears it.
func (m *Msg) SetRTopic(rtopic string) { m.rtopic = rtopic }

// SetValue tears the previous value down and installs a new one. The flags
// argument supplies the new type and encoding tags; control bits are kept.
func (m *Msg) SetValue(flags Flags, args ...any) {
	m.setValue(flags, args)
}

func (m *Msg) setValue(flags Flags, args []any) {
	m.freeValue()
	m.flags = (m.flags &^ MaskValue) | (flags & MaskValue)

	switch m.flags & MaskType {
	case TypeInt:
		m.intVal = asInt64(arg(args, 0))
	case TypeDbl:
		m.dblVal = asFloat64(arg(args, 0))
	case TypeBool:
		v, _ := arg(args, 0).(bool)
		m.boolVal = v
	case TypePtr:
		m.ptrVal = arg(args, 0)
	case TypeStr:
		v, _ := arg(args, 0).(string)
		m.strVal = v
	case TypeBuf:
		switch v := arg(args, 0).(type) {
		case Buf:
			m.bufVal = v
		case []byte:
			m.bufVal = Buf{Data: v}
			if dtor, ok := arg(args, 1).(func([]byte)); ok {
				m.bufVal.Dtor = dtor
			}
		}
	case TypeErr:
		switch v := arg(args, 0).(type) {
		case Err:
			m.errVal = v
		case int:
			desc, _ := arg(args, 1).(string)
			m.errVal = Err{ID: v, Desc: desc}
		}
	}
}

// freeValue runs the teardown of the current value and resets the type tag
// to nil, mirroring the ownership rule that a value-mutating operation
// first releases the old payload.
func (m *Msg) freeValue() {
	if m.IsBuf() && m.bufVal.Dtor != nil && m.bufVal.Data != nil {
		m.bufVal.Dtor(m.bufVal.Data)
	}
	m.intVal = 0
	m.dblVal = 0
	m.boolVal = false
	m.ptrVal = nil
	m.strVal = ""
	m.bufVal = Buf{}
	m.errVal = Err{}
	m.flags = (m.flags &^ MaskValue) | TypeNil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// Type predicates. All are safe on nil.

func (m *Msg) IsInt() bool  { return m != nil && m.flags&MaskType == TypeInt }
func (m *Msg) IsDbl() bool  { return m != nil && m.flags&MaskType == TypeDbl }
func (m *Msg) IsBool() bool { return m != nil && m.flags&MaskType == TypeBool }
func (m *Msg) IsPtr() bool  { return m != nil && m.flags&MaskType == TypePtr }
func (m *Msg) IsStr() bool  { return m != nil && m.flags&MaskType == TypeStr }
func (m *Msg) IsBuf() bool  { return m != nil && m.flags&MaskType == TypeBuf }
func (m *Msg) IsErr() bool  { return m != nil && m.flags&MaskType == TypeErr }
func (m *Msg) IsNil() bool  { return m != nil && m.flags&MaskType == TypeNil }

// IsNumber reports whether the value coerces among int, double and bool.
func (m *Msg) IsNumber() bool { return m.IsInt() || m.IsDbl() || m.IsBool() }

// IsExternal reports the External control bit.
func (m *Msg) IsExternal() bool { return m != nil && m.flags&External != 0 }

// IsUntrusted reports the Untrusted control bit.
func (m *Msg) IsUntrusted() bool { return m != nil && m.flags&Untrusted != 0 }

// Encoding returns the buffer encoding tag.
func (m *Msg) Encoding() Flags { return m.flags & MaskEnc }

// Int coerces the value to an integer. Non-numeric values yield 0.
func (m *Msg) Int() int64 {
	switch {
	case m.IsInt():
		return m.intVal
	case m.IsDbl():
		return int64(m.dblVal)
	case m.IsBool():
		if m.boolVal {
			return 1
		}
	}
	return 0
}

// Float coerces the value to a double. Non-numeric values yield 0.
func (m *Msg) Float() float64 {
	switch {
	case m.IsInt():
		return float64(m.intVal)
	case m.IsDbl():
		return m.dblVal
	case m.IsBool():
		if m.boolVal {
			return 1
		}
	}
	return 0
}

// Bool coerces the value to a boolean. Non-numeric values yield false.
func (m *Msg) Bool() bool {
	switch {
	case m.IsInt():
		return m.intVal != 0
	case m.IsDbl():
		return m.dblVal != 0
	case m.IsBool():
		return m.boolVal
	}
	return false
}

// Str returns the string payload ("" for other types).
func (m *Msg) Str() string { return m.strVal }

// Buffer returns the buffer payload (zero Buf for other types).
func (m *Msg) Buffer() Buf { return m.bufVal }

// ErrVal returns the error payload (zero Err for other types).
func (m *Msg) ErrVal() Err { return m.errVal }

// Ptr returns the opaque pointer payload (nil for other types).
func (m *Msg) Ptr() any { return m.ptrVal }

// HasTopic reports whether the message topic equals ref. Ref may carry a
// trailing flag segment after a space, which is ignored. Safe on nil.
func (m *Msg) HasTopic(ref string) bool {
	if m == nil {
		return false
	}
	return m.topic == stripFlagSuffix(ref)
}

// HasTopicPrefix reports whether the message topic starts with pre. Pre may
// carry a trailing flag segment after a space, which is ignored.
func (m *Msg) HasTopicPrefix(pre string) bool {
	if m == nil {
		return false
	}
	return strings.HasPrefix(m.topic, stripFlagSuffix(pre))
}

// HasTopicSuffix reports whether the message topic ends with suf. Suf may
// carry a trailing flag segment after a space, which is ignored.
func (m *Msg) HasTopicSuffix(suf string) bool {
	if m == nil {
		return false
	}
	return strings.HasSuffix(m.topic, stripFlagSuffix(suf))
}

func stripFlagSuffix(topic string) string {
	if i := strings.IndexByte(topic, ' '); i >= 0 {
		return topic[:i]
	}
	return topic
}
