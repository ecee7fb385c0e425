package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer owns the listener lifecycle so main stays a thin composition
// root.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the server around the router with the timeouts from
// cfg. The header read timeout is fixed and does not follow the configured
// body timeouts.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}}
}

// Addr reports the listen address for startup logging.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start serves requests until Shutdown is called or the listener fails. It
// returns http.ErrServerClosed after a graceful stop.
func (s *HTTPServer) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests until
// ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
