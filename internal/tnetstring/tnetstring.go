// Package tnetstring reads and writes tagged netstrings, the self-describing
// length-prefixed encoding Mongrel2 uses for handler messages.
//
// A value is encoded as <length>:<payload><type>, where length is the
// decimal byte length of payload and type is a single marker byte:
//
//	,  byte string
//	#  integer
//	^  float
//	!  boolean ("true" or "false")
//	~  null (empty payload)
//	}  hash (alternating key/value tnetstrings, keys are byte strings)
//	]  list (sequence of tnetstrings)
package tnetstring

import (
	"errors"
	"fmt"
)

// Type is the marker byte that terminates a tnetstring.
type Type byte

const (
	ByteArray Type = ','
	Int       Type = '#'
	Float     Type = '^'
	Bool      Type = '!'
	Null      Type = '~'
	Hash      Type = '}'
	List      Type = ']'
)

// MaxLengthDigits bounds the length prefix. Nine digits keep every payload
// under 1GB and the prefix inside an int on all platforms.
const MaxLengthDigits = 9

// ErrInvalid is wrapped by every validation and decoding failure.
var ErrInvalid = errors.New("tnetstring: invalid value")

func (t Type) String() string {
	switch t {
	case ByteArray:
		return "bytes"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Null:
		return "null"
	case Hash:
		return "hash"
	case List:
		return "list"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

func (t Type) valid() bool {
	switch t {
	case ByteArray, Int, Float, Bool, Null, Hash, List:
		return true
	}
	return false
}

// Check validates that a tnetstring begins at offset in buf. It returns the
// value's type, the offset of its payload and the payload length. The type
// marker sits at payloadOffset+size, so the next value in a sequence starts
// at payloadOffset+size+1. Check does not copy or decode the payload.
func Check(buf []byte, offset int) (typ Type, payloadOffset, size int, err error) {
	if offset < 0 || offset >= len(buf) {
		return 0, 0, 0, fmt.Errorf("%w: offset %d outside buffer of %d bytes", ErrInvalid, offset, len(buf))
	}

	pos := offset
	for pos < len(buf) && buf[pos] != ':' {
		c := buf[pos]
		if c < '0' || c > '9' {
			return 0, 0, 0, fmt.Errorf("%w: unexpected byte 0x%02x in length prefix at %d", ErrInvalid, c, pos)
		}
		size = size*10 + int(c-'0')
		pos++
		if pos-offset > MaxLengthDigits {
			return 0, 0, 0, fmt.Errorf("%w: length prefix at %d exceeds %d digits", ErrInvalid, offset, MaxLengthDigits)
		}
	}
	if pos >= len(buf) {
		return 0, 0, 0, fmt.Errorf("%w: missing ':' after length prefix at %d", ErrInvalid, offset)
	}

	digits := pos - offset
	if digits == 0 {
		return 0, 0, 0, fmt.Errorf("%w: empty length prefix at %d", ErrInvalid, offset)
	}
	if digits > 1 && buf[offset] == '0' {
		return 0, 0, 0, fmt.Errorf("%w: length prefix at %d has a leading zero", ErrInvalid, offset)
	}

	payloadOffset = pos + 1
	if size > len(buf)-payloadOffset-1 {
		return 0, 0, 0, fmt.Errorf("%w: payload of %d bytes at %d overruns buffer", ErrInvalid, size, payloadOffset)
	}

	typ = Type(buf[payloadOffset+size])
	if !typ.valid() {
		return 0, 0, 0, fmt.Errorf("%w: unknown type marker 0x%02x at %d", ErrInvalid, byte(typ), payloadOffset+size)
	}
	return typ, payloadOffset, size, nil
}

// Next returns the offset just past the value whose payload was located by
// Check.
func Next(payloadOffset, size int) int {
	return payloadOffset + size + 1
}
