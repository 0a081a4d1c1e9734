package tnetstring

import "strconv"

// String returns a byte string value.
func String(s string) Value {
	return Value{Type: ByteArray, Bytes: []byte(s)}
}

// Map returns a hash value holding the given string pairs in order.
// kv alternates keys and values; a trailing key without a value is ignored.
func Map(kv ...string) Value {
	h := Value{Type: Hash}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Hash = append(h.Hash, Pair{Key: []byte(kv[i]), Value: String(kv[i+1])})
	}
	return h
}

// AppendBytes appends b encoded as a byte string.
func AppendBytes(dst, b []byte) []byte {
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, ':')
	dst = append(dst, b...)
	return append(dst, byte(ByteArray))
}

// AppendValue appends the encoding of v.
func AppendValue(dst []byte, v Value) []byte {
	var payload []byte
	switch v.Type {
	case ByteArray:
		return AppendBytes(dst, v.Bytes)
	case Int:
		payload = strconv.AppendInt(nil, v.Int, 10)
	case Float:
		payload = strconv.AppendFloat(nil, v.Float, 'g', -1, 64)
	case Bool:
		payload = strconv.AppendBool(nil, v.Bool)
	case Null:
	case List:
		for _, item := range v.List {
			payload = AppendValue(payload, item)
		}
	case Hash:
		for _, p := range v.Hash {
			payload = AppendBytes(payload, p.Key)
			payload = AppendValue(payload, p.Value)
		}
	default:
		// Unknown kinds encode as null rather than producing an unreadable value.
		return append(dst, '0', ':', byte(Null))
	}

	dst = strconv.AppendInt(dst, int64(len(payload)), 10)
	dst = append(dst, ':')
	dst = append(dst, payload...)
	return append(dst, byte(v.Type))
}

// Marshal returns the encoding of v.
func Marshal(v Value) []byte {
	return AppendValue(nil, v)
}
