package packet

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Header is a single HTTP header line.
type Header struct {
	Name  []byte
	Value []byte
}

// Headers is an ordered header list. Names may repeat.
type Headers []Header

// Get returns the value of the first header whose name matches name without
// regard to case, or nil.
func (h Headers) Get(name string) []byte {
	for _, hdr := range h {
		if bytes.EqualFold(hdr.Name, []byte(name)) {
			return hdr.Value
		}
	}
	return nil
}

// Values returns every value for name, in order, matching case-insensitively.
func (h Headers) Values(name string) [][]byte {
	var out [][]byte
	for _, hdr := range h {
		if bytes.EqualFold(hdr.Name, []byte(name)) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// Has reports whether a header named name is present.
func (h Headers) Has(name string) bool {
	for _, hdr := range h {
		if bytes.EqualFold(hdr.Name, []byte(name)) {
			return true
		}
	}
	return false
}

// CanonicalName uppercases the first character of key and every character
// that follows a hyphen. Everything else is left as is, so "x-forwarded-for"
// becomes "X-Forwarded-For" and "x-mIxed" becomes "X-MIxed". Bytes that are
// not valid UTF-8 are copied through unchanged.
func CanonicalName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	upper := true
	for i := 0; i < len(key); {
		r, size := utf8.DecodeRuneInString(key[i:])
		if upper && r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteString(key[i : i+size])
		}
		upper = r == '-'
		i += size
	}
	return b.String()
}

// isMetadataKey reports whether every character of key is an uppercase
// letter. Mongrel2 reserves such keys for its own request metadata. Invalid
// UTF-8 decodes as utf8.RuneError, which is not upper case.
func isMetadataKey(key string) bool {
	for _, r := range key {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
