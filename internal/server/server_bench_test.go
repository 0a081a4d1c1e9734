package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/protocol"
)

func BenchmarkHealthEndpoint(b *testing.B) {
	h := NewHealthHandler(newTestPool(b))

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}
}

func BenchmarkMetricsEndpoint(b *testing.B) {
	m := NewMetrics(newTestPool(b), nil)
	handler := m.Middleware("/metrics")(http.NotFoundHandler())

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/metrics", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

// BenchmarkServerHandler runs a readiness probe through the full middleware
// chain, gzip included.
func BenchmarkServerHandler(b *testing.B) {
	srv := New(config.Default(), newTestPool(b), nil, testLogger())
	handler := srv.Handler()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/readyz", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}

func BenchmarkFrameIngest(b *testing.B) {
	p := newTestPool(b)
	l := NewFrameListener("127.0.0.1:0", 0, p, testLogger())
	if err := l.Listen(); err != nil {
		b.Fatalf("Listen: %v", err)
	}
	go l.Serve()
	b.Cleanup(func() { l.Close() })

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		b.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := protocol.NewMessageFrame([]byte(validMessage))
	b.SetBytes(int64(len(validMessage)))
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := protocol.WriteFrame(conn, frame); err != nil {
			b.Fatalf("WriteFrame: %v", err)
		}
	}
}
