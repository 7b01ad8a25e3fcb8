// Package controlplane implements spec §6's message-bus control
// plane: a length-prefixed JSON tagged-value codec over a selectable
// UDP or TCP transport, a Handler that translates the logical message
// catalogue (/connect, /disconnect, /setParameter, /getParameter,
// /detectors, /sources) into flowengine.Engine calls, and the
// per-frame startFrame/blob/endFrame envelope the engine's Publisher
// emits back out. Grounded on
// References/orion-prototipe/internal/control/handler.go's
// Command/Response JSON shape and callback-dispatch style; no OSC
// library (liblo's Go equivalent) exists anywhere in the example
// pack, and the wire format is explicitly left to the implementation
// by spec §6, so this package hand-rolls net.UDPConn/net.TCPConn
// framing rather than reaching for grpc/protobuf (present elsewhere
// in the pack but rejected here — see DESIGN.md).
package controlplane

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/careorion/blobserver/internal/types"
)

// ReplyPort is the fixed port clients are expected to listen for
// replies on (spec §6: "Replies are sent to the client at port 9000
// (a fixed reply port is part of the contract)").
const ReplyPort = 9000

// DefaultListenPort is the control plane's default inbound port.
const DefaultListenPort = 9002

// Message is the wire envelope for every logical path in spec §6's
// catalogue: a path string plus a flat list of tagged arguments.
type Message struct {
	Path string        `json:"path"`
	Args []types.Value `json:"args"`
}

// wireValue is Value's JSON-serializable shape; Value itself doesn't
// implement json.Marshaler so that internal/types stays free of an
// encoding dependency (only the wire boundary needs one).
type wireValue struct {
	Kind string  `json:"kind"`
	I    int64   `json:"i,omitempty"`
	F    float64 `json:"f,omitempty"`
	S    string  `json:"s,omitempty"`
	B    bool    `json:"b,omitempty"`
}

func toWire(v types.Value) wireValue {
	w := wireValue{}
	switch v.Kind {
	case types.KindInt:
		w.Kind, w.I = "int", v.I
	case types.KindFloat:
		w.Kind, w.F = "float", v.F
	case types.KindString:
		w.Kind, w.S = "string", v.S
	case types.KindBool:
		w.Kind, w.B = "bool", v.B
	}
	return w
}

func fromWire(w wireValue) types.Value {
	switch w.Kind {
	case "int":
		return types.IntValue(w.I)
	case "float":
		return types.FloatValue(w.F)
	case "string":
		return types.StringValue(w.S)
	case "bool":
		return types.BoolValue(w.B)
	}
	return types.Value{}
}

// wireMessage is Message's JSON shape, threading Value through
// wireValue.
type wireMessage struct {
	Path string      `json:"path"`
	Args []wireValue `json:"args"`
}

// Encode serializes a Message as a 4-byte big-endian length prefix
// followed by its JSON body, so a stream transport can frame
// individual messages the same way a datagram transport does.
func Encode(m Message) ([]byte, error) {
	wm := wireMessage{Path: m.Path}
	for _, a := range m.Args {
		wm.Args = append(wm.Args, toWire(a))
	}
	body, err := json.Marshal(wm)
	if err != nil {
		return nil, fmt.Errorf("controlplane: encode: %w", err)
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	return buf, nil
}

// Decode parses a single length-prefixed Message from buf, returning
// the message and the number of bytes consumed.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) < 4 {
		return Message{}, 0, io.ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+n {
		return Message{}, 0, io.ErrShortBuffer
	}
	var wm wireMessage
	if err := json.Unmarshal(buf[4:4+n], &wm); err != nil {
		return Message{}, 0, fmt.Errorf("controlplane: decode: %w", err)
	}
	m := Message{Path: wm.Path}
	for _, a := range wm.Args {
		m.Args = append(m.Args, fromWire(a))
	}
	return m, 4 + n, nil
}
