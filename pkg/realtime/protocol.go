package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordSeparator terminates every JSON record on the wire.
const RecordSeparator = 0x1e

// MessageType is the numeric "type" field of a hub frame.
type MessageType int

const (
	MessageInvocation   MessageType = 1
	MessageStreamItem   MessageType = 2
	MessageCompletion   MessageType = 3
	MessageStreamInvoke MessageType = 4
	MessageCancel       MessageType = 5
	MessagePing         MessageType = 6
	MessageClose        MessageType = 7
)

// Frame is one hub protocol record.
type Frame struct {
	Type           MessageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// HandshakeRequest is the first record a client sends.
type HandshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// HandshakeResponse is the server's answer; an empty Error means success.
type HandshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// Encode appends the record separator to the JSON form of v.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, RecordSeparator), nil
}

// EncodeHandshake returns the JSON protocol handshake request.
func EncodeHandshake() []byte {
	b, _ := Encode(HandshakeRequest{Protocol: "json", Version: 1})
	return b
}

// Invocation builds an invocation frame. An empty id means no completion
// is expected.
func Invocation(id, target string, args ...any) (Frame, error) {
	f := Frame{Type: MessageInvocation, InvocationID: id, Target: target}
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Frame{}, fmt.Errorf("argument %d: %w", i, err)
		}
		f.Arguments = append(f.Arguments, raw)
	}
	if f.Arguments == nil {
		f.Arguments = []json.RawMessage{}
	}
	return f, nil
}

// SplitRecords splits a transport message into records, dropping the
// separators and empty records.
func SplitRecords(data []byte) [][]byte {
	var out [][]byte
	for _, rec := range bytes.Split(data, []byte{RecordSeparator}) {
		if len(bytes.TrimSpace(rec)) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// DecodeFrame parses one record.
func DecodeFrame(rec []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(rec, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if f.Type == 0 {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// DecodeHandshakeResponse parses the server's handshake record.
func DecodeHandshakeResponse(rec []byte) error {
	var resp HandshakeResponse
	if err := json.Unmarshal(rec, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrHandshake, resp.Error)
	}
	return nil
}

var pingRecord, _ = Encode(Frame{Type: MessagePing})
