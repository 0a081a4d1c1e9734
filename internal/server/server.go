// Package server exposes the ingest endpoints and operational HTTP surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/pool"
	"github.com/sadewadee/m2proxy/internal/websocket"
)

// Server is the main m2proxy server.
type Server struct {
	cfg     *config.Config
	pool    *pool.Pool
	ws      *websocket.Manager
	logger  *slog.Logger
	http    *http.Server
	frames  *FrameListener
	router  *Router
	metrics *Metrics
}

// New creates a new m2proxy server. ws may be nil when the websocket
// endpoint is disabled.
func New(cfg *config.Config, decodePool *pool.Pool, ws *websocket.Manager, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		pool:   decodePool,
		ws:     ws,
		logger: logger,
	}

	s.metrics = NewMetrics(decodePool, ws)
	s.router = NewRouter(cfg, decodePool, ws, logger)

	s.http = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.buildMiddleware(s.router),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}
	if cfg.Server.HTTP2 {
		EnableHTTP2(s.http)
	}

	if cfg.Ingest.FrameAddress != "" {
		s.frames = NewFrameListener(cfg.Ingest.FrameAddress, cfg.Ingest.MaxMessageSize, decodePool, logger)
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening. It blocks until the HTTP server stops.
func (s *Server) Start() error {
	s.logger.Info("m2proxy server starting",
		"address", s.cfg.Server.Address,
		"websocket_path", s.cfg.Ingest.WebSocketPath,
		"frame_address", s.cfg.Ingest.FrameAddress,
		"h2c", s.cfg.Server.HTTP2,
	)

	if s.frames != nil {
		if err := s.frames.Listen(); err != nil {
			return err
		}
		go s.frames.Serve()
	}

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the listeners. In-flight messages already
// queued are left for the pool to drain.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("m2proxy server shutting down")

	if s.ws != nil {
		s.ws.CloseAll()
	}
	var frameErr error
	if s.frames != nil {
		frameErr = s.frames.Close()
	}
	return errors.Join(s.http.Shutdown(ctx), frameErr)
}

func (s *Server) buildMiddleware(handler http.Handler) http.Handler {
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = RecoveryMiddleware(s.logger)(handler)

	if s.cfg.Metrics.Enabled {
		handler = s.metrics.Middleware(s.cfg.Metrics.Path)(handler)
	}

	// Compression is outermost (wraps everything including metrics)
	if s.cfg.Server.Compress {
		handler = CompressionMiddleware()(handler)
	}

	return handler
}
