package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/sadewadee/m2proxy/internal/protocol"
	"github.com/sadewadee/m2proxy/internal/websocket"
)

// FrameListener accepts TCP connections carrying protocol frames. Each
// TypeMessage frame holds one raw Mongrel2 message, optionally snappy
// compressed. A TypePing frame is answered with a pong.
type FrameListener struct {
	addr      string
	maxSize   int
	submitter websocket.Submitter
	logger    *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewFrameListener creates a frame listener for addr.
func NewFrameListener(addr string, maxSize int, submitter websocket.Submitter, logger *slog.Logger) *FrameListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &FrameListener{
		addr:      addr,
		maxSize:   maxSize,
		submitter: submitter,
		logger:    logger,
		conns:     make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Listen binds the listener address.
func (l *FrameListener) Listen() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("frame listener on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	l.logger.Info("frame listener started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, nil before Listen.
func (l *FrameListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until Close is called.
func (l *FrameListener) Serve() error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return errors.New("frame listener is not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Error("frame accept failed", "error", err)
			return err
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			conn.Close()
			return nil
		}
		l.conns[conn] = struct{}{}
		l.wg.Add(1)
		l.mu.Unlock()

		go l.handle(conn)
	}
}

// Close stops accepting, drops open connections and waits for their
// handlers to return.
func (l *FrameListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.cancel()
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	return err
}

func (l *FrameListener) handle(conn net.Conn) {
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		conn.Close()
		l.wg.Done()
	}()

	remote := conn.RemoteAddr().String()
	l.logger.Debug("frame connection opened", "remote_addr", remote)

	r := bufio.NewReader(conn)
	for {
		f, err := protocol.ReadFrameLimited(r, l.maxSize)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.logger.Warn("frame read failed", "remote_addr", remote, "error", err)
			}
			return
		}

		if err := protocol.Decompress(f, l.maxSize); err != nil {
			l.logger.Warn("frame payload rejected", "remote_addr", remote, "error", err)
			return
		}

		switch f.Type {
		case protocol.TypeMessage:
			if err := l.submitter.Submit(l.ctx, f.Payload); err != nil {
				l.logger.Warn("frame message not queued", "remote_addr", remote, "error", err)
			}
		case protocol.TypePing:
			if !bytes.Equal(f.Payload, []byte("ping")) {
				continue
			}
			if err := protocol.WriteFrame(conn, protocol.NewPongFrame()); err != nil {
				l.logger.Warn("pong write failed", "remote_addr", remote, "error", err)
				return
			}
		default:
			l.logger.Warn("unexpected frame type", "remote_addr", remote, "type", f.Type)
		}
	}
}
