package protocol

import (
	"fmt"

	"github.com/sadewadee/m2proxy/internal/packet"
)

// HeaderField is one HTTP header of a decoded request.
type HeaderField struct {
	Name  string `msgpack:"name" json:"name"`
	Value string `msgpack:"value" json:"value"`
}

// RequestRecord holds the decoded request metadata handed to consumers. The
// body travels as the frame payload.
type RequestRecord struct {
	Sender     string        `msgpack:"sender" json:"sender"`
	ID         string        `msgpack:"id" json:"id"`
	Method     string        `msgpack:"method" json:"method"`
	Path       string        `msgpack:"path" json:"path"`
	Headers    []HeaderField `msgpack:"headers" json:"headers"`
	UploadFile string        `msgpack:"upload_file,omitempty" json:"upload_file,omitempty"`
	UploadDone bool          `msgpack:"upload_done,omitempty" json:"upload_done,omitempty"`
}

// NewRequestRecord converts a decoded packet into its record form.
func NewRequestRecord(p *packet.RequestPacket) *RequestRecord {
	rec := &RequestRecord{
		Sender:     string(p.Sender),
		ID:         string(p.ID),
		Method:     string(p.Method),
		Path:       string(p.Path),
		Headers:    make([]HeaderField, 0, len(p.Headers)),
		UploadFile: p.UploadFile,
		UploadDone: p.UploadDone,
	}
	for _, h := range p.Headers {
		rec.Headers = append(rec.Headers, HeaderField{Name: string(h.Name), Value: string(h.Value)})
	}
	return rec
}

// Packet rebuilds a request packet from the record and its body.
func (r *RequestRecord) Packet(body []byte) *packet.RequestPacket {
	p := &packet.RequestPacket{
		Sender:     []byte(r.Sender),
		ID:         []byte(r.ID),
		Method:     []byte(r.Method),
		Path:       []byte(r.Path),
		Body:       body,
		UploadFile: r.UploadFile,
		UploadDone: r.UploadDone,
	}
	for _, h := range r.Headers {
		p.Headers = append(p.Headers, packet.Header{Name: []byte(h.Name), Value: []byte(h.Value)})
	}
	return p
}

// EncodeRequest creates a REQUEST frame from a decoded packet.
func EncodeRequest(p *packet.RequestPacket) (*Frame, error) {
	headers, err := MarshalMsgpack(NewRequestRecord(p))
	if err != nil {
		return nil, fmt.Errorf("encoding request headers: %w", err)
	}

	var flags uint8
	if p.HasUpload() {
		flags |= FlagUpload
	}
	if p.UploadDone {
		flags |= FlagUploadDone
	}

	return &Frame{
		Type:    TypeRequest,
		Flags:   flags,
		Headers: headers,
		Payload: p.Body,
	}, nil
}

// DecodeRequest extracts the request record and body from a REQUEST frame.
func DecodeRequest(f *Frame) (*RequestRecord, []byte, error) {
	if f.Type != TypeRequest {
		return nil, nil, fmt.Errorf("expected REQUEST frame, got type 0x%02x", f.Type)
	}
	var rec RequestRecord
	if err := UnmarshalMsgpack(f.Headers, &rec); err != nil {
		return nil, nil, fmt.Errorf("decoding request headers: %w", err)
	}
	return &rec, f.Payload, nil
}
