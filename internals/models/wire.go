// Package models provides the wire data structures for the WebSocket
// bridge and their conversions to and from broker messages.
package models

import (
	"time"

	"github.com/treebus/treebus/internals/message"
)

// Value is the JSON rendering of a tagged message value.
type Value struct {
	Type     string  `json:"type"` // int, double, bool, string, buffer, error, nil
	Int      int64   `json:"int,omitempty"`
	Double   float64 `json:"double,omitempty"`
	Bool     bool    `json:"bool,omitempty"`
	Str      string  `json:"str,omitempty"`
	Data     []byte  `json:"data,omitempty"` // base64 on the wire
	Encoding string  `json:"encoding,omitempty"`
	ErrID    int     `json:"err_id,omitempty"`
	ErrDesc  string  `json:"err_desc,omitempty"`
}

// ClientMsg is a WebSocket client operation.
type ClientMsg struct {
	Type      string `json:"type"` // subscribe, unsubscribe, publish, call, ping
	Topic     string `json:"topic,omitempty"`
	Value     *Value `json:"value,omitempty"`
	Sticky    bool   `json:"sticky,omitempty"`
	NoRecurse bool   `json:"no_recurse,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ServerMsg is a server-to-client frame: the connected greeting, a
// delivered message, a call response, an ack for a client operation, a
// pong, or an error.
type ServerMsg struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Topic     string    `json:"topic,omitempty"`
	RTopic    string    `json:"rtopic,omitempty"`
	Value     *Value    `json:"value,omitempty"`
	Delivered int       `json:"delivered,omitempty"`
	Error     *ErrorObj `json:"error,omitempty"`
	Ts        time.Time `json:"ts,omitempty"`
}

// ErrorObj represents an error with code and message.
type ErrorObj struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServerError creates an error frame.
func NewServerError(requestID, code, msg string) ServerMsg {
	return ServerMsg{
		Type:      "error",
		RequestID: requestID,
		Error:     &ErrorObj{Code: code, Message: msg},
		Ts:        time.Now(),
	}
}

var encodingNames = map[message.Flags]string{
	message.EncRaw:      "raw",
	message.EncMsgpack:  "msgpack",
	message.EncJSON:     "json",
	message.EncBSON:     "bson",
	message.EncYAML:     "yaml",
	message.EncProtobuf: "protobuf",
	message.EncXML:      "xml",
}

var encodingFlags = func() map[string]message.Flags {
	m := make(map[string]message.Flags, len(encodingNames))
	for fl, name := range encodingNames {
		m[name] = fl
	}
	return m
}()

// FromMessage renders a broker message value for the wire.
func FromMessage(m *message.Msg) *Value {
	switch {
	case m.IsInt():
		return &Value{Type: "int", Int: m.Int()}
	case m.IsDbl():
		return &Value{Type: "double", Double: m.Float()}
	case m.IsBool():
		return &Value{Type: "bool", Bool: m.Bool()}
	case m.IsStr():
		return &Value{Type: "string", Str: m.Str()}
	case m.IsBuf():
		return &Value{
			Type:     "buffer",
			Data:     m.Buffer().Data,
			Encoding: encodingNames[m.Encoding()],
		}
	case m.IsErr():
		e := m.ErrVal()
		return &Value{Type: "error", ErrID: e.ID, ErrDesc: e.Desc}
	default:
		return &Value{Type: "nil"}
	}
}

// ToMessage builds a broker message from a wire value. A nil value yields
// a nil-typed message. The returned message carries reference count 1.
func ToMessage(topic string, v *Value, flags message.Flags) *message.Msg {
	if v == nil {
		return message.New(topic, flags|message.TypeNil)
	}
	switch v.Type {
	case "int":
		return message.New(topic, flags|message.TypeInt, v.Int)
	case "double":
		return message.New(topic, flags|message.TypeDbl, v.Double)
	case "bool":
		return message.New(topic, flags|message.TypeBool, v.Bool)
	case "string":
		return message.New(topic, flags|message.TypeStr, v.Str)
	case "buffer":
		enc := encodingFlags[v.Encoding]
		return message.New(topic, flags|message.TypeBuf|enc, message.Buf{Data: v.Data})
	case "error":
		return message.New(topic, flags|message.TypeErr, v.ErrID, v.ErrDesc)
	default:
		return message.New(topic, flags|message.TypeNil)
	}
}
