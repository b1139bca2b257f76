package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps the HTTP server with lab-appropriate timeouts and graceful
// shutdown.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	log        *zap.Logger
}

// NewServer creates a server for the handler on addr.
func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
			// WriteTimeout stays unset: WebSocket progress streams outlive
			// any fixed response window.
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		log: log,
	}
}

// Start binds the listener and serves until Shutdown or failure.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("web: listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	s.log.Info("wizard API listening", zap.String("addr", listener.Addr().String()))
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web: serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("wizard API shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
