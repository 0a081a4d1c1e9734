package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/m2proxy/internal/packet"
	"github.com/sadewadee/m2proxy/internal/pool"
	"github.com/sadewadee/m2proxy/internal/websocket"
)

// Metrics collects Prometheus-compatible metrics.
type Metrics struct {
	totalRequests  sync.Map // "method:status" -> *atomic.Int64
	activeRequests atomic.Int32

	durationBuckets []float64
	durationCounts  sync.Map // bucket key -> *atomic.Int64
	durationSum     atomic.Int64
	durationCount   atomic.Int64

	pool *pool.Pool
	ws   *websocket.Manager
}

// NewMetrics creates a new metrics collector. Either source may be nil.
func NewMetrics(p *pool.Pool, ws *websocket.Manager) *Metrics {
	return &Metrics{
		pool:            p,
		ws:              ws,
		durationBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}
}

// Middleware returns a middleware that collects metrics and serves the metrics endpoint.
func (m *Metrics) Middleware(metricsPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == metricsPath {
				m.serveMetrics(w)
				return
			}

			start := time.Now()
			m.activeRequests.Add(1)
			defer m.activeRequests.Add(-1)

			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: 200}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			key := fmt.Sprintf("%s:%d", r.Method, rw.statusCode)
			counter, _ := m.totalRequests.LoadOrStore(key, &atomic.Int64{})
			counter.(*atomic.Int64).Add(1)

			// Hijacked ingest connections live as long as the frontend does.
			if rw.hijacked {
				return
			}
			m.durationSum.Add(int64(duration))
			m.durationCount.Add(1)
			durationSec := duration.Seconds()
			for _, bucket := range m.durationBuckets {
				if durationSec <= bucket {
					bkey := fmt.Sprintf("%.3f", bucket)
					bc, _ := m.durationCounts.LoadOrStore(bkey, &atomic.Int64{})
					bc.(*atomic.Int64).Add(1)
				}
			}
		})
	}
}

func (m *Metrics) serveMetrics(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	var b strings.Builder

	b.WriteString("# HELP m2proxy_http_requests_total Total number of HTTP requests.\n")
	b.WriteString("# TYPE m2proxy_http_requests_total counter\n")
	m.totalRequests.Range(func(key, value any) bool {
		parts := strings.SplitN(key.(string), ":", 2)
		method, status := parts[0], parts[1]
		count := value.(*atomic.Int64).Load()
		fmt.Fprintf(&b, "m2proxy_http_requests_total{method=\"%s\",status=\"%s\"} %d\n", method, status, count)
		return true
	})

	b.WriteString("# HELP m2proxy_http_requests_active Current number of active HTTP requests.\n")
	b.WriteString("# TYPE m2proxy_http_requests_active gauge\n")
	fmt.Fprintf(&b, "m2proxy_http_requests_active %d\n", m.activeRequests.Load())

	b.WriteString("# HELP m2proxy_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE m2proxy_http_request_duration_seconds histogram\n")
	cumulative := int64(0)
	totalCount := m.durationCount.Load()
	for _, bucket := range m.durationBuckets {
		bkey := fmt.Sprintf("%.3f", bucket)
		if bc, ok := m.durationCounts.Load(bkey); ok {
			cumulative = bc.(*atomic.Int64).Load()
		}
		fmt.Fprintf(&b, "m2proxy_http_request_duration_seconds_bucket{le=\"%.3f\"} %d\n", bucket, cumulative)
	}
	fmt.Fprintf(&b, "m2proxy_http_request_duration_seconds_bucket{le=\"+Inf\"} %d\n", totalCount)
	fmt.Fprintf(&b, "m2proxy_http_request_duration_seconds_sum %.6f\n", float64(m.durationSum.Load())/float64(time.Second))
	fmt.Fprintf(&b, "m2proxy_http_request_duration_seconds_count %d\n", totalCount)

	if m.pool != nil {
		m.writePoolMetrics(&b, m.pool.Stats())
	}

	if m.ws != nil {
		stats := m.ws.Stats()
		b.WriteString("# HELP m2proxy_websocket_connections_active Connected websocket frontends.\n")
		b.WriteString("# TYPE m2proxy_websocket_connections_active gauge\n")
		fmt.Fprintf(&b, "m2proxy_websocket_connections_active %d\n", stats.ActiveConnections)

		b.WriteString("# HELP m2proxy_websocket_connections_total Websocket connections accepted.\n")
		b.WriteString("# TYPE m2proxy_websocket_connections_total counter\n")
		fmt.Fprintf(&b, "m2proxy_websocket_connections_total %d\n", stats.TotalConnections)
	}

	b.WriteString("# HELP m2proxy_go_goroutines Number of goroutines.\n")
	b.WriteString("# TYPE m2proxy_go_goroutines gauge\n")
	fmt.Fprintf(&b, "m2proxy_go_goroutines %d\n", runtime.NumGoroutine())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	b.WriteString("# HELP m2proxy_go_memstats_alloc_bytes Number of bytes allocated.\n")
	b.WriteString("# TYPE m2proxy_go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(&b, "m2proxy_go_memstats_alloc_bytes %d\n", mem.Alloc)

	w.Write([]byte(b.String()))
}

func (m *Metrics) writePoolMetrics(b *strings.Builder, stats pool.PoolStats) {
	b.WriteString("# HELP m2proxy_decode_workers Number of decode workers.\n")
	b.WriteString("# TYPE m2proxy_decode_workers gauge\n")
	fmt.Fprintf(b, "m2proxy_decode_workers %d\n", stats.Workers)

	b.WriteString("# HELP m2proxy_decode_workers_busy Number of busy decode workers.\n")
	b.WriteString("# TYPE m2proxy_decode_workers_busy gauge\n")
	fmt.Fprintf(b, "m2proxy_decode_workers_busy %d\n", stats.Busy)

	b.WriteString("# HELP m2proxy_decode_queue_depth Messages waiting for a worker.\n")
	b.WriteString("# TYPE m2proxy_decode_queue_depth gauge\n")
	fmt.Fprintf(b, "m2proxy_decode_queue_depth %d\n", stats.QueueDepth)

	b.WriteString("# HELP m2proxy_messages_received_total Raw messages submitted for decoding.\n")
	b.WriteString("# TYPE m2proxy_messages_received_total counter\n")
	fmt.Fprintf(b, "m2proxy_messages_received_total %d\n", stats.Submitted)

	b.WriteString("# HELP m2proxy_message_bytes_total Bytes of raw messages submitted.\n")
	b.WriteString("# TYPE m2proxy_message_bytes_total counter\n")
	fmt.Fprintf(b, "m2proxy_message_bytes_total %d\n", stats.Bytes)

	b.WriteString("# HELP m2proxy_messages_decoded_total Messages decoded into requests.\n")
	b.WriteString("# TYPE m2proxy_messages_decoded_total counter\n")
	fmt.Fprintf(b, "m2proxy_messages_decoded_total %d\n", stats.Decoded)

	b.WriteString("# HELP m2proxy_messages_rejected_total Messages rejected, by error kind.\n")
	b.WriteString("# TYPE m2proxy_messages_rejected_total counter\n")
	kinds := append(packet.Kinds(), pool.KindTooLarge, "other")
	seen := make(map[string]bool, len(kinds))
	for _, kind := range kinds {
		if seen[kind] {
			continue
		}
		seen[kind] = true
		fmt.Fprintf(b, "m2proxy_messages_rejected_total{kind=\"%s\"} %d\n", kind, stats.RejectedByKind[kind])
	}
	extra := make([]string, 0)
	for kind := range stats.RejectedByKind {
		if !seen[kind] {
			extra = append(extra, kind)
		}
	}
	sort.Strings(extra)
	for _, kind := range extra {
		fmt.Fprintf(b, "m2proxy_messages_rejected_total{kind=\"%s\"} %d\n", kind, stats.RejectedByKind[kind])
	}

	b.WriteString("# HELP m2proxy_sink_errors_total Output writes that failed.\n")
	b.WriteString("# TYPE m2proxy_sink_errors_total counter\n")
	fmt.Fprintf(b, "m2proxy_sink_errors_total %d\n", stats.SinkErrors)
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	hijacked   bool
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, buf, err := hijack(rw.ResponseWriter)
	if err == nil {
		rw.hijacked = true
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
