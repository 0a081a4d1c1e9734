// Package pool decodes Mongrel2 messages on a fixed set of worker goroutines.
package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/packet"
	"github.com/sadewadee/m2proxy/internal/protocol"
	"github.com/sadewadee/m2proxy/internal/sink"
)

var (
	ErrStopped         = errors.New("pool is not running")
	ErrQueueFull       = errors.New("decode queue full")
	ErrMessageTooLarge = errors.New("message exceeds size limit")
)

// KindTooLarge labels messages refused before decoding.
const KindTooLarge = "too_large"

// Pool manages decode workers fed from a bounded queue.
type Pool struct {
	cfg     config.PoolConfig
	maxSize int
	sink    sink.Sink
	logger  *slog.Logger

	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	// Metrics
	submitted  atomic.Int64
	decoded    atomic.Int64
	rejected   atomic.Int64
	bytesIn    atomic.Int64
	sinkErrors atomic.Int64
	busy       atomic.Int32
	byKind     sync.Map // kind -> *atomic.Int64
}

// New creates a decode pool. maxSize bounds a single message, zero means no
// limit. A nil sink discards output and a nil logger discards logs.
func New(cfg config.PoolConfig, maxSize int, s sink.Sink, logger *slog.Logger) *Pool {
	if s == nil {
		s = sink.Discard
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pool{
		cfg:     cfg,
		maxSize: maxSize,
		sink:    s,
		logger:  logger,
	}
}

// Start spawns the workers.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pool already started")
	}
	if p.cfg.Workers < 1 {
		return fmt.Errorf("pool needs at least one worker, got %d", p.cfg.Workers)
	}

	p.logger.Info("starting decode pool",
		"workers", p.cfg.Workers,
		"queue_size", p.cfg.QueueSize,
		"max_message_size", p.maxSize,
	)

	p.queue = make(chan []byte, p.cfg.QueueSize)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	p.running = true
	return nil
}

// Submit queues one raw message for decoding and takes ownership of msg. It
// waits for queue space up to the configured submit timeout or until ctx is
// done.
func (p *Pool) Submit(ctx context.Context, msg []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrStopped
	}
	p.submitted.Add(1)
	p.bytesIn.Add(int64(len(msg)))

	if p.maxSize > 0 && len(msg) > p.maxSize {
		err := fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLarge, len(msg), p.maxSize)
		p.reject(msg, KindTooLarge, err)
		return err
	}

	var timeout <-chan time.Time
	if d := p.cfg.SubmitTimeout.Duration(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case p.queue <- msg:
		return nil
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrQueueFull, p.cfg.SubmitTimeout.Duration())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new messages, drains the queue and waits for the workers.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("stopping decode pool")
	p.wg.Wait()
	p.logger.Info("decode pool stopped",
		"decoded", p.decoded.Load(),
		"rejected", p.rejected.Load(),
	)
	return nil
}

// Running reports whether the pool accepts messages.
func (p *Pool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	stats := PoolStats{
		Workers:        p.cfg.Workers,
		Busy:           int(p.busy.Load()),
		Submitted:      p.submitted.Load(),
		Decoded:        p.decoded.Load(),
		Rejected:       p.rejected.Load(),
		Bytes:          p.bytesIn.Load(),
		SinkErrors:     p.sinkErrors.Load(),
		RejectedByKind: make(map[string]int64),
	}
	p.mu.RLock()
	if p.queue != nil {
		stats.QueueDepth = len(p.queue)
		stats.QueueCapacity = cap(p.queue)
	}
	p.mu.RUnlock()

	p.byKind.Range(func(key, value any) bool {
		stats.RejectedByKind[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return stats
}

// PoolStats holds pool metrics.
type PoolStats struct {
	Workers        int              `json:"workers"`
	Busy           int              `json:"busy"`
	QueueDepth     int              `json:"queue_depth"`
	QueueCapacity  int              `json:"queue_capacity"`
	Submitted      int64            `json:"submitted"`
	Decoded        int64            `json:"decoded"`
	Rejected       int64            `json:"rejected"`
	Bytes          int64            `json:"bytes"`
	SinkErrors     int64            `json:"sink_errors"`
	RejectedByKind map[string]int64 `json:"rejected_by_kind"`
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("decode worker started", "worker_id", id)

	for msg := range p.queue {
		p.busy.Add(1)
		p.process(msg)
		p.busy.Add(-1)
	}
}

// process decodes msg and hands the result to the sink.
func (p *Pool) process(msg []byte) {
	pkt, err := packet.Decode(msg)
	if err != nil {
		p.reject(msg, packet.Kind(err), err)
		return
	}

	p.decoded.Add(1)
	if err := p.sink.Deliver(pkt); err != nil {
		p.sinkErrors.Add(1)
		p.logger.Error("delivering request", "sender", string(pkt.Sender), "id", string(pkt.ID), "error", err)
	}
}

func (p *Pool) reject(msg []byte, kind string, err error) {
	p.rejected.Add(1)
	counter, _ := p.byKind.LoadOrStore(kind, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)

	rej := &protocol.RejectRecord{Kind: kind, Error: err.Error()}
	if sender, rest, ok := bytes.Cut(msg, []byte(" ")); ok {
		if id, _, ok := bytes.Cut(rest, []byte(" ")); ok {
			rej.Sender = string(sender)
			rej.ID = string(id)
		}
	}

	p.logger.Warn("message rejected",
		"sender", rej.Sender,
		"id", rej.ID,
		"kind", kind,
		"size", len(msg),
		"error", err,
	)

	if err := p.sink.Reject(rej); err != nil {
		p.sinkErrors.Add(1)
		p.logger.Error("delivering reject", "kind", kind, "error", err)
	}
}
