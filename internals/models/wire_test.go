package models

import (
	"testing"

	"github.com/treebus/treebus/internals/message"
)

func TestFromMessage(t *testing.T) {
	cases := []struct {
		name string
		msg  *message.Msg
		want Value
	}{
		{"int", message.New("t", message.TypeInt, int64(42)), Value{Type: "int", Int: 42}},
		{"double", message.New("t", message.TypeDbl, 1.5), Value{Type: "double", Double: 1.5}},
		{"bool", message.New("t", message.TypeBool, true), Value{Type: "bool", Bool: true}},
		{"string", message.New("t", message.TypeStr, "hi"), Value{Type: "string", Str: "hi"}},
		{"nil", message.New("t", message.TypeNil), Value{Type: "nil"}},
		{"error", message.New("t", message.TypeErr, 3, "boom"), Value{Type: "error", ErrID: 3, ErrDesc: "boom"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromMessage(tc.msg)
			if got.Type != tc.want.Type || got.Int != tc.want.Int ||
				got.Double != tc.want.Double || got.Bool != tc.want.Bool ||
				got.Str != tc.want.Str || got.ErrID != tc.want.ErrID ||
				got.ErrDesc != tc.want.ErrDesc {
				t.Errorf("FromMessage = %+v, want %+v", got, tc.want)
			}
			tc.msg.Unref()
		})
	}
}

func TestFromMessageBuffer(t *testing.T) {
	m := message.New("t", message.TypeBuf|message.EncMsgpack,
		message.Buf{Data: []byte{0x81}})
	defer m.Unref()

	v := FromMessage(m)
	if v.Type != "buffer" || v.Encoding != "msgpack" || len(v.Data) != 1 {
		t.Errorf("Buffer rendering wrong: %+v", v)
	}
}

func TestToMessage(t *testing.T) {
	m := ToMessage("a.b", &Value{Type: "int", Int: 9}, message.External)
	if !m.IsInt() || m.Int() != 9 {
		t.Errorf("Expected int 9, got %v", m.Int())
	}
	if m.Topic() != "a.b" {
		t.Errorf("Expected topic a.b, got %q", m.Topic())
	}
	if !m.IsExternal() {
		t.Error("Control flags lost")
	}
	m.Unref()

	m = ToMessage("a", nil, 0)
	if !m.IsNil() {
		t.Error("Nil wire value must map to a nil-typed message")
	}
	m.Unref()

	m = ToMessage("a", &Value{Type: "buffer", Data: []byte{1, 2}, Encoding: "json"}, 0)
	if !m.IsBuf() || m.Encoding() != message.EncJSON {
		t.Error("Buffer encoding tag lost on the way in")
	}
	m.Unref()
}

func TestRoundTrip(t *testing.T) {
	orig := message.New("x", message.TypeStr, "payload")
	back := ToMessage(orig.Topic(), FromMessage(orig), 0)

	if back.Topic() != orig.Topic() || back.Str() != orig.Str() {
		t.Error("Round trip lost data")
	}
	orig.Unref()
	back.Unref()
}
