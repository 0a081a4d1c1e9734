package protocol

import "fmt"

// RejectRecord describes a message that failed to decode. Sender and ID are
// filled only when the leading fields could be split.
type RejectRecord struct {
	Sender string `msgpack:"sender,omitempty" json:"sender,omitempty"`
	ID     string `msgpack:"id,omitempty" json:"id,omitempty"`
	Kind   string `msgpack:"kind" json:"kind"`
	Error  string `msgpack:"error" json:"error"`
}

// EncodeReject creates a REJECT frame. The raw message is not echoed back.
func EncodeReject(rej *RejectRecord) (*Frame, error) {
	headers, err := MarshalMsgpack(rej)
	if err != nil {
		return nil, fmt.Errorf("encoding reject headers: %w", err)
	}
	return &Frame{Type: TypeReject, Headers: headers}, nil
}

// DecodeReject extracts the reject record from a REJECT frame.
func DecodeReject(f *Frame) (*RejectRecord, error) {
	if f.Type != TypeReject {
		return nil, fmt.Errorf("expected REJECT frame, got type 0x%02x", f.Type)
	}
	var rej RejectRecord
	if err := UnmarshalMsgpack(f.Headers, &rej); err != nil {
		return nil, fmt.Errorf("decoding reject headers: %w", err)
	}
	return &rej, nil
}
