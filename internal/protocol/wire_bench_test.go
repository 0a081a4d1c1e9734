package protocol

import (
	"bytes"
	"testing"

	"github.com/sadewadee/m2proxy/internal/packet"
)

func BenchmarkWriteFrame(b *testing.B) {
	var buf bytes.Buffer
	frame := NewMessageFrame([]byte(`s 1 /p 27:{"METHOD":"GET","URI":"/x"},13:Hello, World!,`))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		WriteFrame(&buf, frame)
	}
}

func BenchmarkReadFrame(b *testing.B) {
	frame := &Frame{
		Type:    TypeRequest,
		Headers: []byte(`{"method":"GET","path":"/"}`),
		Payload: bytes.Repeat([]byte("a"), 4096),
	}

	var buf bytes.Buffer
	WriteFrame(&buf, frame)
	data := buf.Bytes()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		reader := bytes.NewReader(data)
		ReadFrame(reader)
	}
}

func BenchmarkEncodeRequest(b *testing.B) {
	pkt := &packet.RequestPacket{
		Sender: []byte("54c6755b-9628-40a4-9a2d-cc82a816345e"),
		ID:     []byte("1337"),
		Method: []byte("GET"),
		Path:   []byte("/api/users?page=1&limit=20"),
		Headers: packet.Headers{
			{Name: []byte("Accept"), Value: []byte("application/json")},
			{Name: []byte("Authorization"), Value: []byte("Bearer token123")},
			{Name: []byte("User-Agent"), Value: []byte("m2proxy-bench/1.0")},
		},
		Body: []byte(`{"query":"SELECT * FROM users"}`),
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		EncodeRequest(pkt)
	}
}

func BenchmarkLargePayload(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"1KB", 1024},
		{"4KB", 4096},
		{"64KB", 64 * 1024},
		{"1MB", 1024 * 1024},
	}

	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			frame := NewMessageFrame(bytes.Repeat([]byte("x"), s.size))

			var buf bytes.Buffer
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				buf.Reset()
				WriteFrame(&buf, frame)
				ReadFrame(&buf)
			}
		})
	}
}
