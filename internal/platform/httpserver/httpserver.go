// Package httpserver runs the key API listener with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultShutdownGrace = 10 * time.Second

// Server pairs an http.Server with the grace period allowed for in-flight
// trigger requests on shutdown.
type Server struct {
	srv   *http.Server
	grace time.Duration
	ln    net.Listener
}

type Option func(*Server)

// WithShutdownGrace bounds how long Run waits for open requests.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithListener serves on an existing listener instead of dialing addr.
func WithListener(ln net.Listener) Option {
	return func(s *Server) { s.ln = ln }
}

func New(addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// the directory gateway call sits inside the write window
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  90 * time.Second,
		},
		grace: defaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves until ctx is done and then drains connections.
func (s *Server) Run(ctx context.Context, logger *slog.Logger) error {
	ln := s.ln
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.srv.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
		}
	}

	served := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", ln.Addr().String())
		served <- s.srv.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("http server shutting down", "grace", s.grace)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
