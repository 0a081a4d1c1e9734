package server

import (
	"log/slog"
	"net/http"

	"github.com/sadewadee/m2proxy/internal/config"
	"github.com/sadewadee/m2proxy/internal/pool"
	"github.com/sadewadee/m2proxy/internal/websocket"
)

// Router dispatches incoming HTTP requests to the appropriate handler.
type Router struct {
	cfg           *config.Config
	logger        *slog.Logger
	ingest        http.Handler
	healthHandler *HealthHandler
}

// NewRouter creates a new request router. The websocket ingest route is
// only mounted when ws is non-nil and a path is configured.
func NewRouter(cfg *config.Config, decodePool *pool.Pool, ws *websocket.Manager, logger *slog.Logger) *Router {
	r := &Router{
		cfg:           cfg,
		logger:        logger,
		healthHandler: NewHealthHandler(decodePool),
	}

	if ws != nil && cfg.Ingest.WebSocketPath != "" {
		r.ingest = websocket.NewHandler(ws, decodePool, cfg.Ingest.MaxMessageSize, logger)
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/health", "/healthz", "/ready", "/readyz":
		r.healthHandler.ServeHTTP(w, req)
		return
	}

	if r.ingest != nil && req.URL.Path == r.cfg.Ingest.WebSocketPath {
		r.ingest.ServeHTTP(w, req)
		return
	}

	http.NotFound(w, req)
}
