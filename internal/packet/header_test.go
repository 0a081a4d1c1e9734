package packet

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sadewadee/m2proxy/internal/tnetstring"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"content-type", "Content-Type"},
		{"x-custom-header", "X-Custom-Header"},
		{"x-forwarded-for", "X-Forwarded-For"},
		{"host", "Host"},
		{"Accept", "Accept"},
		{"x-mIxed", "X-MIxed"},
		{"trailing-", "Trailing-"},
		{"double--dash", "Double--Dash"},
		{"", ""},
		{"é-tag", "É-Tag"},
		{"x-\xffab", "X-\xffab"},
		{"\xff-ab", "\xff-Ab"},
		{"\xc3-x", "\xc3-X"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CanonicalName(tt.in); got != tt.want {
				t.Errorf("CanonicalName(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsMetadataKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"METHOD", true},
		{"URI", true},
		{"ETAG", true},
		{"VERSION", true},
		{"Host", false},
		{"X-FORWARDED", false},
		{"HTTP2", false},
		{"x-mongrel2-upload-start", false},
		{"AB\xff", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isMetadataKey(tt.key); got != tt.want {
				t.Errorf("isMetadataKey(%q): got %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestDecodeKeepsInvalidUTF8HeaderName(t *testing.T) {
	p, err := Decode(message("s 1 /p ", tnetstring.Map("METHOD", "GET", "x-\xffab", "v"), ""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Headers) != 1 || !bytes.Equal(p.Headers[0].Name, []byte("X-\xffab")) {
		t.Errorf("Headers: got %q", headerPairs(p.Headers))
	}
}

func TestHeadersLookup(t *testing.T) {
	h := Headers{
		{Name: []byte("Content-Type"), Value: []byte("text/plain")},
		{Name: []byte("Set-Cookie"), Value: []byte("a=1")},
		{Name: []byte("Set-Cookie"), Value: []byte("b=2")},
	}

	if got := string(h.Get("content-type")); got != "text/plain" {
		t.Errorf("Get(content-type): got %q", got)
	}
	if got := string(h.Get("SET-COOKIE")); got != "a=1" {
		t.Errorf("Get(SET-COOKIE): got %q, want first value", got)
	}
	if got := h.Values("set-cookie"); len(got) != 2 || string(got[1]) != "b=2" {
		t.Errorf("Values(set-cookie): got %q", got)
	}
	if h.Get("missing") != nil {
		t.Error("Get(missing): expected nil")
	}
	if !h.Has("Content-type") || h.Has("Accept") {
		t.Error("Has: unexpected result")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("body: %w", ErrInvalidValue), "invalid_value"},
		{ErrMalformedFraming, "malformed_framing"},
		{fmt.Errorf("x: %w", ErrInconsistentUploadState), "inconsistent_upload_state"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind(%v): got %q, want %q", tt.err, got, tt.want)
			}
		})
	}

	if len(Kinds()) != 6 {
		t.Errorf("Kinds: got %d labels, want 6", len(Kinds()))
	}
}
