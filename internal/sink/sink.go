// Package sink delivers decoded requests and decode failures to consumers.
package sink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/packet"
	"github.com/sadewadee/m2proxy/internal/protocol"
)

// Sink receives the outcome of every decoded message. Implementations must
// be safe for concurrent use.
type Sink interface {
	Deliver(p *packet.RequestPacket) error
	Reject(rej *protocol.RejectRecord) error
}

// New returns the sink for the configured output format.
func New(cfg config.OutputConfig, w io.Writer) (Sink, error) {
	switch cfg.Format {
	case "frame":
		return NewFrameSink(w, cfg.Compress), nil
	case "json":
		return NewJSONSink(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", cfg.Format)
}

// FrameSink writes REQUEST and REJECT frames. With compress set, request
// bodies are snappy encoded.
type FrameSink struct {
	mu       sync.Mutex
	w        io.Writer
	compress bool
}

func NewFrameSink(w io.Writer, compress bool) *FrameSink {
	return &FrameSink{w: w, compress: compress}
}

func (s *FrameSink) Deliver(p *packet.RequestPacket) error {
	f, err := protocol.EncodeRequest(p)
	if err != nil {
		return err
	}
	if s.compress {
		protocol.Compress(f)
	}
	return s.write(f)
}

func (s *FrameSink) Reject(rej *protocol.RejectRecord) error {
	f, err := protocol.EncodeReject(rej)
	if err != nil {
		return err
	}
	return s.write(f)
}

func (s *FrameSink) write(f *protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.WriteFrame(s.w, f)
}

// JSONSink writes one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONSink{enc: enc}
}

// SetIndent makes every following record multi-line.
func (s *JSONSink) SetIndent(prefix, indent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.SetIndent(prefix, indent)
}

// jsonRequest shadows the record's headers. Header fields and the body
// that are not valid UTF-8 are written base64 encoded and flagged, since
// JSON strings cannot carry them.
type jsonRequest struct {
	Type string `json:"type"`
	*protocol.RequestRecord
	Headers      []jsonHeader `json:"headers"`
	Body         string       `json:"body"`
	BodyEncoding string       `json:"body_encoding,omitempty"`
}

type jsonHeader struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Encoding string `json:"encoding,omitempty"`
}

const base64Encoding = "base64"

func jsonText(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), ""
	}
	return base64.StdEncoding.EncodeToString(b), base64Encoding
}

func newJSONRequest(p *packet.RequestPacket) jsonRequest {
	req := jsonRequest{
		Type:          "request",
		RequestRecord: protocol.NewRequestRecord(p),
		Headers:       make([]jsonHeader, 0, len(p.Headers)),
	}
	req.Body, req.BodyEncoding = jsonText(p.Body)
	for _, h := range p.Headers {
		if utf8.Valid(h.Name) && utf8.Valid(h.Value) {
			req.Headers = append(req.Headers, jsonHeader{Name: string(h.Name), Value: string(h.Value)})
			continue
		}
		req.Headers = append(req.Headers, jsonHeader{
			Name:     base64.StdEncoding.EncodeToString(h.Name),
			Value:    base64.StdEncoding.EncodeToString(h.Value),
			Encoding: base64Encoding,
		})
	}
	return req
}

type jsonReject struct {
	Type string `json:"type"`
	*protocol.RejectRecord
}

func (s *JSONSink) Deliver(p *packet.RequestPacket) error {
	return s.encode(newJSONRequest(p))
}

func (s *JSONSink) Reject(rej *protocol.RejectRecord) error {
	return s.encode(jsonReject{Type: "reject", RejectRecord: rej})
}

func (s *JSONSink) encode(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		return fmt.Errorf("writing json record: %w", err)
	}
	return nil
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Deliver(*packet.RequestPacket) error { return nil }
func (discard) Reject(*protocol.RejectRecord) error { return nil }
