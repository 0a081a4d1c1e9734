package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic bytes identify m2proxy frames.
var Magic = [2]byte{0x4D, 0x32} // "M2"

// Version is the current protocol version.
const Version uint8 = 0x01

// FrameHeaderSize is the fixed size of a frame header in bytes.
const FrameHeaderSize = 14

// Message types define the purpose of each frame.
const (
	TypeMessage uint8 = 0x01 // Frontend → proxy: one raw Mongrel2 request message
	TypeRequest uint8 = 0x02 // Proxy → consumer: decoded request
	TypeReject  uint8 = 0x03 // Proxy → consumer: message that failed to decode
	TypePing    uint8 = 0x04 // Health check (ping/pong)
)

// Flags modify frame behavior.
const (
	FlagUpload     uint8 = 1 << 0 // Request is part of a chunked upload
	FlagUploadDone uint8 = 1 << 1 // Upload has completed
)

// ErrFrameTooLarge is returned by ReadFrameLimited when a frame announces
// more payload than the caller allows.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// Frame represents a single m2proxy protocol frame.
type Frame struct {
	Type     uint8
	Flags    uint8
	StreamID uint16
	Headers  []byte // msgpack encoded
	Payload  []byte // raw bytes
}

// WriteFrame encodes and writes a frame to the given writer.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Headers) > 1<<24-1 {
		return fmt.Errorf("frame headers too large: %d bytes", len(f.Headers))
	}

	header := make([]byte, FrameHeaderSize)
	header[0] = Magic[0]
	header[1] = Magic[1]
	header[2] = Version
	header[3] = f.Type
	header[4] = f.Flags
	binary.BigEndian.PutUint16(header[5:7], f.StreamID)

	// Header size as 3 bytes (big-endian uint24)
	hdrSize := len(f.Headers)
	header[7] = byte(hdrSize >> 16)
	header[8] = byte(hdrSize >> 8)
	header[9] = byte(hdrSize)

	binary.BigEndian.PutUint32(header[10:14], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if len(f.Headers) > 0 {
		if _, err := w.Write(f.Headers); err != nil {
			return fmt.Errorf("writing frame headers: %w", err)
		}
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("writing frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads and decodes a frame from the given reader.
func ReadFrame(r io.Reader) (*Frame, error) {
	return ReadFrameLimited(r, 0)
}

// ReadFrameLimited reads a frame, refusing payloads larger than limit bytes
// before allocating them. A limit of zero disables the check.
func ReadFrameLimited(r io.Reader, limit int) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	if header[0] != Magic[0] || header[1] != Magic[1] {
		return nil, fmt.Errorf("invalid magic bytes: 0x%02x%02x", header[0], header[1])
	}
	if header[2] != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", header[2])
	}

	f := &Frame{
		Type:     header[3],
		Flags:    header[4],
		StreamID: binary.BigEndian.Uint16(header[5:7]),
	}

	hdrSize := int(header[7])<<16 | int(header[8])<<8 | int(header[9])
	payloadSize := binary.BigEndian.Uint32(header[10:14])

	if limit > 0 && uint64(payloadSize) > uint64(limit) {
		return nil, fmt.Errorf("%w: payload %d bytes, limit %d", ErrFrameTooLarge, payloadSize, limit)
	}

	if hdrSize > 0 {
		f.Headers = make([]byte, hdrSize)
		if _, err := io.ReadFull(r, f.Headers); err != nil {
			return nil, fmt.Errorf("reading frame headers (%d bytes): %w", hdrSize, err)
		}
	}
	if payloadSize > 0 {
		f.Payload = make([]byte, payloadSize)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, fmt.Errorf("reading frame payload (%d bytes): %w", payloadSize, err)
		}
	}

	return f, nil
}

// NewMessageFrame wraps one raw Mongrel2 request message.
func NewMessageFrame(msg []byte) *Frame {
	return &Frame{Type: TypeMessage, Payload: msg}
}

// NewPingFrame creates a PING health check frame.
func NewPingFrame() *Frame {
	return &Frame{Type: TypePing, Payload: []byte("ping")}
}

// NewPongFrame creates a PONG response frame.
func NewPongFrame() *Frame {
	return &Frame{Type: TypePing, Payload: []byte("pong")}
}
