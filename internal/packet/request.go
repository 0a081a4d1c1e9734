// Package packet decodes Mongrel2 handler request messages.
//
// A message is laid out as
//
//	<sender> SP <id> SP <path> SP <headers tnetstring><body tnetstring>
//
// where the headers value is either a tnetstring hash or a tnetstring byte
// string holding a JSON object, and the body is a tnetstring byte string.
package packet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sadewadee/m2proxy/internal/tnetstring"
)

// Header block keys Mongrel2 sets for chunked uploads. They carry the temp
// file name and are never forwarded as HTTP headers.
const (
	UploadStartHeader = "x-mongrel2-upload-start"
	UploadDoneHeader  = "x-mongrel2-upload-done"
)

const (
	methodKey = "METHOD"
	uriKey    = "URI"
)

// RequestPacket is one decoded Mongrel2 request. Every byte slice is owned by
// the packet and never aliases the decoded buffer.
type RequestPacket struct {
	Sender []byte
	ID     []byte
	Method []byte
	Path   []byte

	Headers Headers
	Body    []byte

	// UploadFile names the upload temp file, empty when the request is not
	// part of a chunked upload.
	UploadFile string
	UploadDone bool
}

// HasUpload reports whether the request carried upload markers.
func (p *RequestPacket) HasUpload() bool {
	return p.UploadFile != ""
}

// field is one entry of the header block before classification.
type field struct {
	key   string
	value []byte
}

// Decode parses a complete Mongrel2 request message. It either returns a
// fully populated packet or an error wrapping one of the Err* values.
func Decode(in []byte) (*RequestPacket, error) {
	sender, id, start, err := splitFields(in)
	if err != nil {
		return nil, err
	}

	fields, next, err := decodeHeaderBlock(in, start)
	if err != nil {
		return nil, err
	}

	p := &RequestPacket{
		Sender: bytes.Clone(sender),
		ID:     bytes.Clone(id),
	}

	var uploadStart, uploadDone []byte
	for _, f := range fields {
		switch {
		case f.key == UploadStartHeader:
			uploadStart = f.value
		case f.key == UploadDoneHeader:
			uploadDone = f.value
		case isMetadataKey(f.key):
			switch f.key {
			case methodKey:
				p.Method = f.value
			case uriKey:
				p.Path = f.value
			}
		default:
			p.Headers = append(p.Headers, Header{
				Name:  []byte(CanonicalName(f.key)),
				Value: f.value,
			})
		}
	}

	p.UploadFile, p.UploadDone, err = resolveUpload(uploadStart, uploadDone)
	if err != nil {
		return nil, err
	}

	p.Body, err = readBody(in, next)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// splitFields returns the sender and request id and the offset of the header
// block. The path token between the id and the header block is skipped; the
// URI metadata key is the authoritative path.
func splitFields(in []byte) (sender, id []byte, rest int, err error) {
	var tokens [3][]byte
	pos := 0
	for i := range tokens {
		end := bytes.IndexByte(in[pos:], ' ')
		if end < 0 {
			return nil, nil, 0, fmt.Errorf("%w: missing delimiter %d of 3", ErrMalformedFraming, i+1)
		}
		tokens[i] = in[pos : pos+end]
		pos += end + 1
	}
	return tokens[0], tokens[1], pos, nil
}

func decodeHeaderBlock(in []byte, start int) ([]field, int, error) {
	typ, po, size, err := tnetstring.Check(in, start)
	if err != nil {
		return nil, 0, fmt.Errorf("header block: %w: %w", ErrInvalidValue, err)
	}
	if typ != tnetstring.Hash && typ != tnetstring.ByteArray {
		return nil, 0, fmt.Errorf("header block: %w: %s", ErrUnexpectedValueKind, typ)
	}

	var fields []field
	if typ == tnetstring.Hash {
		fields, err = fieldsFromHash(in, po, size)
	} else {
		var data []byte
		data, err = tnetstring.ToBytes(in, start, po, size)
		if err != nil {
			return nil, 0, fmt.Errorf("header block: %w: %w", ErrInvalidValue, err)
		}
		fields, err = fieldsFromJSON(data)
	}
	if err != nil {
		return nil, 0, err
	}
	return fields, tnetstring.Next(po, size), nil
}

// fieldsFromHash walks the header hash entry by entry. A value that is not a
// byte string fails before anything nested inside it is decoded.
func fieldsFromHash(in []byte, po, size int) ([]field, error) {
	var fields []field
	err := tnetstring.WalkHash(in, po, size, func(e tnetstring.Entry) error {
		if e.Type != tnetstring.ByteArray {
			return fmt.Errorf("header %q: %w: got %s", e.Key, ErrHeaderNotTextual, e.Type)
		}
		fields = append(fields, field{
			key:   string(e.Key),
			value: bytes.Clone(in[e.PayloadOffset : e.PayloadOffset+e.Size]),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrHeaderNotTextual) {
			return nil, err
		}
		return nil, fmt.Errorf("header block: %w: %w", ErrInvalidValue, err)
	}
	return fields, nil
}

// resolveUpload reconciles the upload markers. A done marker is only valid
// when it names the same file as the start marker.
func resolveUpload(start, done []byte) (string, bool, error) {
	if len(done) > 0 {
		if !bytes.Equal(start, done) {
			return "", false, fmt.Errorf("%w: start %q, done %q", ErrInconsistentUploadState, start, done)
		}
		return string(done), true, nil
	}
	if len(start) > 0 {
		return string(start), false, nil
	}
	return "", false, nil
}

func readBody(in []byte, offset int) ([]byte, error) {
	typ, po, size, err := tnetstring.Check(in, offset)
	if err != nil {
		return nil, fmt.Errorf("body: %w: %w", ErrInvalidValue, err)
	}
	if typ != tnetstring.ByteArray {
		return nil, fmt.Errorf("body: %w: %s", ErrUnexpectedValueKind, typ)
	}
	body, err := tnetstring.ToBytes(in, offset, po, size)
	if err != nil {
		return nil, fmt.Errorf("body: %w: %w", ErrInvalidValue, err)
	}
	return body, nil
}
