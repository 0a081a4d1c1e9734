package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sadewadee/m2proxy/internal/protocol"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSubmitter) Submit(_ context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, string(msg))
	return nil
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func startFrameListener(t *testing.T, maxSize int, sub *recordingSubmitter) *FrameListener {
	t.Helper()
	l := NewFrameListener("127.0.0.1:0", maxSize, sub, testLogger())
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go l.Serve()
	t.Cleanup(func() { l.Close() })
	return l
}

func TestFrameListenerSubmitsMessages(t *testing.T) {
	sub := &recordingSubmitter{}
	l := startFrameListener(t, 0, sub)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, m := range []string{validMessage, invalidMessage} {
		if err := protocol.WriteFrame(conn, protocol.NewMessageFrame([]byte(m))); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	waitFor(t, func() bool { return sub.count() == 2 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.msgs[0] != validMessage || sub.msgs[1] != invalidMessage {
		t.Errorf("messages out of order: %q", sub.msgs)
	}
}

func TestFrameListenerDecompresses(t *testing.T) {
	sub := &recordingSubmitter{}
	l := startFrameListener(t, 1024, sub)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	f := protocol.NewMessageFrame([]byte(validMessage))
	protocol.Compress(f)
	if err := protocol.WriteFrame(conn, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	waitFor(t, func() bool { return sub.count() == 1 })

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.msgs[0] != validMessage {
		t.Errorf("got %q, want %q", sub.msgs[0], validMessage)
	}
}

func TestFrameListenerPing(t *testing.T) {
	l := startFrameListener(t, 0, &recordingSubmitter{})

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.NewPingFrame()); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != protocol.TypePing || string(f.Payload) != "pong" {
		t.Errorf("got type %d payload %q, want pong", f.Type, f.Payload)
	}
}

func TestFrameListenerDropsOversizedFrame(t *testing.T) {
	sub := &recordingSubmitter{}
	l := startFrameListener(t, 16, sub)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.NewMessageFrame([]byte(validMessage))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected connection to be closed")
	}
	if sub.count() != 0 {
		t.Error("oversized frame was submitted")
	}
}

func TestFrameListenerClose(t *testing.T) {
	l := NewFrameListener("127.0.0.1:0", 0, &recordingSubmitter{}, testLogger())
	if err := l.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- l.Serve() }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
