package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sadewadee/m2proxy/internal/packet"
)

func TestWriteReadFrameRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{
			name:  "message frame",
			frame: NewMessageFrame([]byte(`s 1 /p 16:{"METHOD":"GET"},0:,`)),
		},
		{
			name: "request frame",
			frame: &Frame{
				Type:     TypeRequest,
				Flags:    FlagUpload,
				StreamID: 0,
				Headers:  []byte(`{"method":"GET"}`),
				Payload:  []byte("hello"),
			},
		},
		{
			name: "reject frame",
			frame: &Frame{
				Type:    TypeReject,
				Headers: []byte("hdr"),
			},
		},
		{
			name:  "ping",
			frame: NewPingFrame(),
		},
		{
			name:  "pong",
			frame: NewPongFrame(),
		},
		{
			name: "empty headers and payload",
			frame: &Frame{
				Type:    TypeMessage,
				Headers: nil,
				Payload: nil,
			},
		},
		{
			name: "with flags and stream",
			frame: &Frame{
				Type:     TypeRequest,
				Flags:    FlagUpload | FlagUploadDone,
				StreamID: 100,
				Headers:  []byte("hdr"),
				Payload:  []byte("upload body"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.frame); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}

			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}

			if got.Type != tt.frame.Type {
				t.Errorf("Type: got %d, want %d", got.Type, tt.frame.Type)
			}
			if got.Flags != tt.frame.Flags {
				t.Errorf("Flags: got %d, want %d", got.Flags, tt.frame.Flags)
			}
			if got.StreamID != tt.frame.StreamID {
				t.Errorf("StreamID: got %d, want %d", got.StreamID, tt.frame.StreamID)
			}
			if !bytes.Equal(got.Headers, tt.frame.Headers) {
				t.Errorf("Headers: got %q, want %q", got.Headers, tt.frame.Headers)
			}
			if !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Errorf("Payload: got %q, want %q", got.Payload, tt.frame.Payload)
			}
		})
	}
}

func TestInvalidMagicBytes(t *testing.T) {
	data := make([]byte, FrameHeaderSize)
	data[0] = 0xFF
	data[1] = 0xFF
	data[2] = Version

	_, err := ReadFrame(bytes.NewReader(data))
	if err == nil {
		t.Error("expected error for invalid magic bytes")
	}
}

func TestInvalidVersion(t *testing.T) {
	data := make([]byte, FrameHeaderSize)
	data[0] = Magic[0]
	data[1] = Magic[1]
	data[2] = 0xFF // invalid version

	_, err := ReadFrame(bytes.NewReader(data))
	if err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, NewMessageFrame([]byte("0123456789"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-3]

	if _, err := ReadFrame(bytes.NewReader(data)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestReadFrameLimited(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, NewMessageFrame(bytes.Repeat([]byte("a"), 64))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	data := buf.Bytes()

	if _, err := ReadFrameLimited(bytes.NewReader(data), 32); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
	if _, err := ReadFrameLimited(bytes.NewReader(data), 64); err != nil {
		t.Errorf("frame at limit: %v", err)
	}
}

func TestLargePayload(t *testing.T) {
	payload := make([]byte, 1024*1024) // 1MB
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	frame := &Frame{
		Type:    TypeRequest,
		Payload: payload,
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if !bytes.Equal(got.Payload, payload) {
		t.Error("payload mismatch for large payload")
	}
}

func TestRequestEncodeDecodeRoundtrip(t *testing.T) {
	pkt := &packet.RequestPacket{
		Sender: []byte("54c6755b-9628-40a4-9a2d-cc82a816345e"),
		ID:     []byte("12"),
		Method: []byte("POST"),
		Path:   []byte("/api/users"),
		Headers: packet.Headers{
			{Name: []byte("Content-Type"), Value: []byte("application/json")},
			{Name: []byte("Set-Cookie"), Value: []byte("a=1")},
			{Name: []byte("Set-Cookie"), Value: []byte("b=2")},
		},
		Body:       []byte(`{"name":"test"}`),
		UploadFile: "/tmp/upload.1",
		UploadDone: true,
	}

	frame, err := EncodeRequest(pkt)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if frame.Flags != FlagUpload|FlagUploadDone {
		t.Errorf("Flags: got %d, want %d", frame.Flags, FlagUpload|FlagUploadDone)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	readFrame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	rec, body, err := DecodeRequest(readFrame)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	if rec.Method != "POST" {
		t.Errorf("Method: got %s, want POST", rec.Method)
	}
	if rec.Path != "/api/users" {
		t.Errorf("Path: got %s, want /api/users", rec.Path)
	}
	if len(rec.Headers) != 3 || rec.Headers[2].Value != "b=2" {
		t.Errorf("Headers: got %+v", rec.Headers)
	}
	if rec.UploadFile != "/tmp/upload.1" || !rec.UploadDone {
		t.Errorf("upload: got %q done=%v", rec.UploadFile, rec.UploadDone)
	}
	if !bytes.Equal(body, pkt.Body) {
		t.Errorf("Body: got %s, want %s", body, pkt.Body)
	}

	back := rec.Packet(body)
	if string(back.Headers.Get("content-type")) != "application/json" {
		t.Errorf("rebuilt packet Content-Type: got %q", back.Headers.Get("content-type"))
	}
	if string(back.Sender) != string(pkt.Sender) || string(back.ID) != "12" {
		t.Errorf("rebuilt packet ids: got %q %q", back.Sender, back.ID)
	}
}

func TestRejectEncodeDecodeRoundtrip(t *testing.T) {
	frame, err := EncodeReject(&RejectRecord{
		Sender: "s1",
		ID:     "r1",
		Kind:   "inconsistent_upload_state",
		Error:  "upload done marker does not match upload start marker",
	})
	if err != nil {
		t.Fatalf("EncodeReject: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	readFrame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	rej, err := DecodeReject(readFrame)
	if err != nil {
		t.Fatalf("DecodeReject: %v", err)
	}
	if rej.Sender != "s1" || rej.ID != "r1" || rej.Kind != "inconsistent_upload_state" {
		t.Errorf("got %+v", rej)
	}
}

func TestDecodeWrongFrameType(t *testing.T) {
	frame := &Frame{Type: TypePing}
	if _, _, err := DecodeRequest(frame); err == nil {
		t.Error("expected error decoding PING as REQUEST")
	}
	if _, err := DecodeReject(frame); err == nil {
		t.Error("expected error decoding PING as REJECT")
	}
}

func TestCompressRoundtrip(t *testing.T) {
	payload := bytes.Repeat([]byte("x-forwarded-for: 10.0.0.1\r\n"), 64)
	f := NewMessageFrame(append([]byte(nil), payload...))

	Compress(f)
	if f.Flags&FlagCompressed == 0 {
		t.Fatal("expected compressed flag")
	}
	if len(f.Payload) >= len(payload) {
		t.Errorf("payload did not shrink: %d >= %d", len(f.Payload), len(payload))
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := Decompress(got, 0); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got.Payload, payload) || got.Flags&FlagCompressed != 0 {
		t.Error("payload mismatch after decompress")
	}
}

func TestDecompressLimit(t *testing.T) {
	f := NewMessageFrame(bytes.Repeat([]byte("a"), 4096))
	Compress(f)

	err := Decompress(f, 1024)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecompressCorrupt(t *testing.T) {
	f := &Frame{Type: TypeMessage, Flags: FlagCompressed, Payload: []byte{0xff, 0xff, 0xff}}
	if err := Decompress(f, 0); err == nil {
		t.Error("expected error for corrupt payload")
	}
}
