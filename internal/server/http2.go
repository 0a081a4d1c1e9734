package server

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// EnableHTTP2 enables h2c (HTTP/2 cleartext) on the plaintext listener.
// TLS is terminated by the frontend, so there is no ALPN path.
func EnableHTTP2(srv *http.Server) {
	srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{
		IdleTimeout: srv.IdleTimeout,
	})
}
