package tnetstring

import (
	"bytes"
	"fmt"
	"strconv"
)

// Value is a decoded tnetstring. Type selects which field carries the data.
// Byte strings and hash keys alias the decoded buffer; callers that keep
// them past the buffer's lifetime must copy.
type Value struct {
	Type  Type
	Bytes []byte
	Int   int64
	Float float64
	Bool  bool
	List  []Value
	Hash  []Pair
}

// Pair is one hash entry. Hash entries keep wire order and duplicate keys.
type Pair struct {
	Key   []byte
	Value Value
}

// MaxDepth bounds how deeply lists and hashes may nest.
const MaxDepth = 64

// Decode materializes the value located by Check. Containers nested deeper
// than MaxDepth are rejected with ErrInvalid.
func Decode(buf []byte, offset int, typ Type, payloadOffset, size int) (Value, error) {
	return decode(buf, offset, typ, payloadOffset, size, 0)
}

func decode(buf []byte, offset int, typ Type, payloadOffset, size, depth int) (Value, error) {
	if payloadOffset < offset || payloadOffset+size >= len(buf) || Type(buf[payloadOffset+size]) != typ {
		return Value{}, fmt.Errorf("%w: value at %d does not match its checked bounds", ErrInvalid, offset)
	}
	payload := buf[payloadOffset : payloadOffset+size]

	switch typ {
	case ByteArray:
		return Value{Type: ByteArray, Bytes: payload}, nil

	case Int:
		n, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: integer at %d: %v", ErrInvalid, offset, err)
		}
		return Value{Type: Int, Int: n}, nil

	case Float:
		f, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: float at %d: %v", ErrInvalid, offset, err)
		}
		return Value{Type: Float, Float: f}, nil

	case Bool:
		switch {
		case bytes.Equal(payload, []byte("true")):
			return Value{Type: Bool, Bool: true}, nil
		case bytes.Equal(payload, []byte("false")):
			return Value{Type: Bool}, nil
		}
		return Value{}, fmt.Errorf("%w: boolean at %d must be true or false, got %q", ErrInvalid, offset, payload)

	case Null:
		if size != 0 {
			return Value{}, fmt.Errorf("%w: null at %d has a %d byte payload", ErrInvalid, offset, size)
		}
		return Value{Type: Null}, nil

	case List, Hash:
		if depth >= MaxDepth {
			return Value{}, fmt.Errorf("%w: %s at %d nests deeper than %d", ErrInvalid, typ, offset, MaxDepth)
		}
	}

	switch typ {
	case List:
		list, err := decodeList(buf[:payloadOffset+size], payloadOffset, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: List, List: list}, nil

	case Hash:
		hash, err := decodeHash(buf[:payloadOffset+size], payloadOffset, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: Hash, Hash: hash}, nil
	}

	return Value{}, fmt.Errorf("%w: unknown type %s at %d", ErrInvalid, typ, offset)
}

// decodeList reads consecutive values from start to the end of scope. scope
// is cut at the end of the enclosing payload so that no element can claim
// bytes outside it.
func decodeList(scope []byte, start, depth int) ([]Value, error) {
	var list []Value
	for pos := start; pos < len(scope); {
		v, next, err := decodeAt(scope, pos, depth)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
		pos = next
	}
	return list, nil
}

func decodeHash(scope []byte, start, depth int) ([]Pair, error) {
	var hash []Pair
	for pos := start; pos < len(scope); {
		key, next, err := decodeAt(scope, pos, depth)
		if err != nil {
			return nil, err
		}
		if key.Type != ByteArray {
			return nil, fmt.Errorf("%w: hash key at %d is %s, want bytes", ErrInvalid, pos, key.Type)
		}
		if next >= len(scope) {
			return nil, fmt.Errorf("%w: hash key at %d has no value", ErrInvalid, pos)
		}
		val, after, err := decodeAt(scope, next, depth)
		if err != nil {
			return nil, err
		}
		hash = append(hash, Pair{Key: key.Bytes, Value: val})
		pos = after
	}
	return hash, nil
}

func decodeAt(buf []byte, offset, depth int) (Value, int, error) {
	typ, po, size, err := Check(buf, offset)
	if err != nil {
		return Value{}, 0, err
	}
	v, err := decode(buf, offset, typ, po, size, depth)
	if err != nil {
		return Value{}, 0, err
	}
	return v, Next(po, size), nil
}

// ToBytes returns a copy of the byte string located by Check.
func ToBytes(buf []byte, offset, payloadOffset, size int) ([]byte, error) {
	v, err := Decode(buf, offset, ByteArray, payloadOffset, size)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.Bytes), nil
}

// Parse decodes the single value at the start of buf and returns it with the
// number of bytes it consumed.
func Parse(buf []byte) (Value, int, error) {
	return decodeAt(buf, 0, 0)
}

// Entry locates one hash entry without decoding it.
type Entry struct {
	Key           []byte
	Type          Type
	Offset        int
	PayloadOffset int
	Size          int
}

// WalkHash visits the entries of the hash located by Check in wire order.
// Keys must be byte strings. Values are only bounds-checked, never decoded,
// so fn decides what to materialize.
func WalkHash(buf []byte, payloadOffset, size int, fn func(Entry) error) error {
	end := payloadOffset + size
	if payloadOffset < 0 || end >= len(buf) || Type(buf[end]) != Hash {
		return fmt.Errorf("%w: hash at %d does not match its checked bounds", ErrInvalid, payloadOffset)
	}
	scope := buf[:end]

	for pos := payloadOffset; pos < end; {
		ktyp, kpo, ksize, err := Check(scope, pos)
		if err != nil {
			return err
		}
		if ktyp != ByteArray {
			return fmt.Errorf("%w: hash key at %d is %s, want bytes", ErrInvalid, pos, ktyp)
		}
		next := Next(kpo, ksize)
		if next >= end {
			return fmt.Errorf("%w: hash key at %d has no value", ErrInvalid, pos)
		}
		vtyp, vpo, vsize, err := Check(scope, next)
		if err != nil {
			return err
		}
		if err := fn(Entry{
			Key:           scope[kpo : kpo+ksize],
			Type:          vtyp,
			Offset:        next,
			PayloadOffset: vpo,
			Size:          vsize,
		}); err != nil {
			return err
		}
		pos = Next(vpo, vsize)
	}
	return nil
}
